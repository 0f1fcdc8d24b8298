// Copyright 2026 The Fieldglass Authors
// SPDX-License-Identifier: Apache-2.0

package wire

// EnrollmentSessionID names the side-channel flow the connection loop
// uses to submit a certificate signing request after the server
// responds HTTP 406.
const EnrollmentSessionID = "aff4:/flows/CA:Enrol"

// EnrollmentArgsType is the ArgsType of the enrollment Message's
// payload, a serialized Certificate.
const EnrollmentArgsType = "Certificate"

// StatsSessionID names the flow the resource-usage telemetry sampler
// publishes ClientStats messages on.
const StatsSessionID = "F:Stats"

// ClientStatsArgsType is the ArgsType of a telemetry Message's
// payload, a serialized ClientStats.
const ClientStatsArgsType = "ClientStats"

// CertificateType distinguishes the kinds of payload Certificate can
// carry. The core only ever sends CSRs.
type CertificateType uint8

const (
	// CertificateTypeCSR marks PEM as a PKCS#10 certificate signing
	// request rather than an issued certificate.
	CertificateTypeCSR CertificateType = iota
)

// Certificate is the payload of an enrollment Message: a PEM-encoded
// CSR whose subject common name equals the client id.
type Certificate struct {
	Type CertificateType `cbor:"type"`
	PEM  string          `cbor:"pem"`
}

// ClientStats is the payload of a telemetry Message, reporting the
// most recently sampled resource usage.
type ClientStats struct {
	// CPUUserPercent and CPUSystemPercent are the user/system CPU time
	// consumed over the sampling interval, expressed as a percentage
	// of one CPU.
	CPUUserPercent   float64 `cbor:"cpu_user_percent"`
	CPUSystemPercent float64 `cbor:"cpu_system_percent"`

	// RSSBytes is the process's resident set size at sample time.
	RSSBytes uint64 `cbor:"rss_bytes"`

	// BootTimeUnix is the process's own start time, for uptime
	// computation on the server side.
	BootTimeUnix int64 `cbor:"boot_time_unix"`
}
