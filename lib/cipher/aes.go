// Copyright 2026 The Fieldglass Authors
// SPDX-License-Identifier: Apache-2.0

package cipher

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"fmt"
)

const aesBlockSize = 16

// AESCBCEncrypt PKCS#7-pads plaintext to a multiple of the AES block
// size and encrypts it with AES-128-CBC under (key, iv). key and iv
// must each be 16 bytes.
func AESCBCEncrypt(key, iv, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cipher: AES key: %w", err)
	}
	if len(iv) != aesBlockSize {
		return nil, fmt.Errorf("cipher: IV must be %d bytes, got %d", aesBlockSize, len(iv))
	}

	padded := pkcs7Pad(plaintext, aesBlockSize)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)
	return ciphertext, nil
}

// AESCBCDecrypt decrypts ciphertext with AES-128-CBC under (key, iv)
// and removes PKCS#7 padding. Returns an error if ciphertext is not a
// multiple of the block size or if the padding is malformed -- never
// returns partial plaintext on failure.
func AESCBCDecrypt(key, iv, ciphertext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cipher: AES key: %w", err)
	}
	if len(iv) != aesBlockSize {
		return nil, fmt.Errorf("cipher: IV must be %d bytes, got %d", aesBlockSize, len(iv))
	}
	if len(ciphertext) == 0 || len(ciphertext)%aesBlockSize != 0 {
		return nil, fmt.Errorf("cipher: ciphertext length %d is not a multiple of the block size", len(ciphertext))
	}

	padded := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(padded, ciphertext)

	plaintext, err := pkcs7Unpad(padded, aesBlockSize)
	if err != nil {
		return nil, fmt.Errorf("cipher: removing padding: %w", err)
	}
	return plaintext, nil
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	return append(bytes.Clone(data), bytes.Repeat([]byte{byte(padLen)}, padLen)...)
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty input")
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > blockSize || padLen > len(data) {
		return nil, fmt.Errorf("invalid padding length %d", padLen)
	}
	padding := data[len(data)-padLen:]
	for _, b := range padding {
		if int(b) != padLen {
			return nil, fmt.Errorf("invalid padding bytes")
		}
	}
	return data[:len(data)-padLen], nil
}
