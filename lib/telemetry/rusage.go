// Copyright 2026 The Fieldglass Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import "golang.org/x/sys/unix"

// rusageReading captures cumulative process resource usage at a point
// in time, for delta computation across sampling intervals.
type rusageReading struct {
	userMicros   int64
	systemMicros int64
	rssBytes     uint64
}

// readRusage reads RUSAGE_SELF via getrusage. Returns false if the
// syscall fails, in which case the caller should skip this sample
// rather than report a misleading reading.
func readRusage() (rusageReading, bool) {
	var usage unix.Rusage
	if err := unix.Getrusage(unix.RUSAGE_SELF, &usage); err != nil {
		return rusageReading{}, false
	}
	return rusageReading{
		userMicros:   int64(usage.Utime.Sec)*1_000_000 + int64(usage.Utime.Usec),
		systemMicros: int64(usage.Stime.Sec)*1_000_000 + int64(usage.Stime.Usec),
		// Linux reports Maxrss in kilobytes.
		rssBytes: uint64(usage.Maxrss) * 1024,
	}, true
}
