// Copyright 2026 The Fieldglass Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"runtime"

	"github.com/fieldglass/fieldglass/lib/clientconfig"
	"github.com/fieldglass/fieldglass/lib/dispatch"
)

// clientInfo is the payload GetClientInfo replies with -- the one
// action every client answers regardless of which host-introspection
// actions a particular deployment registers, since the server uses it
// to confirm a session is alive and to learn what it is talking to.
type clientInfo struct {
	ClientID string `cbor:"client_id"`
	OS       string `cbor:"os"`
	Arch     string `cbor:"arch"`
}

func registerBuiltinActions(registry *dispatch.Registry[*clientconfig.Config]) {
	registry.Register("GetClientInfo", handleGetClientInfo)
}

func handleGetClientInfo(ctx *dispatch.ActionContext[*clientconfig.Config]) {
	cfg := ctx.Config()
	info := clientInfo{
		ClientID: cfg.ClientID(),
		OS:       runtime.GOOS,
		Arch:     runtime.GOARCH,
	}
	if err := ctx.SendResponse(info); err != nil {
		ctx.SetError(err.Error())
	}
}
