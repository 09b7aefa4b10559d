package server

import "time"

// MetricsCollector is an optional hook for monitoring. Implementations
// can forward to Prometheus, StatsD or anything else; all methods are
// called on hot paths and must not block.
//
// The server checks the collector for nil before every call.
type MetricsCollector interface {
	// RecordCommand records one dispatched command. success is false
	// when the handler returned an error.
	RecordCommand(cmd string, success bool, duration time.Duration)

	// RecordTransfer records a completed data transfer
	// (RETR/STOR/APPE).
	RecordTransfer(operation string, bytes int64, duration time.Duration)

	// RecordConnection records a connection attempt. reason gives
	// context ("accepted", "global_limit_reached").
	RecordConnection(accepted bool, reason string)

	// RecordAuthentication records a PASS outcome for a user.
	RecordAuthentication(success bool, user string)
}
