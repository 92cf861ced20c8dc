package gateway

import "sync/atomic"

// telemetryCounters tracks gateway throughput for the diagnostics
// endpoint. All counters are monotonic except connectionsActive.
type telemetryCounters struct {
	connectionsTotal  atomic.Uint64
	connectionsActive atomic.Int64
	snapshotsSent     atomic.Uint64
	bytesSent         atomic.Uint64
	framesReceived    atomic.Uint64
	writeFailures     atomic.Uint64
	hooksFired        atomic.Uint64
}

type telemetrySnapshot struct {
	ConnectionsTotal  uint64 `json:"connectionsTotal"`
	ConnectionsActive int64  `json:"connectionsActive"`
	SnapshotsSent     uint64 `json:"snapshotsSent"`
	BytesSent         uint64 `json:"bytesSent"`
	FramesReceived    uint64 `json:"framesReceived"`
	WriteFailures     uint64 `json:"writeFailures"`
	HooksFired        uint64 `json:"hooksFired"`
}

func (t *telemetryCounters) RecordSnapshot(bytes int) {
	if bytes < 0 {
		bytes = 0
	}
	t.snapshotsSent.Add(1)
	t.bytesSent.Add(uint64(bytes))
}

func (t *telemetryCounters) Snapshot() telemetrySnapshot {
	return telemetrySnapshot{
		ConnectionsTotal:  t.connectionsTotal.Load(),
		ConnectionsActive: t.connectionsActive.Load(),
		SnapshotsSent:     t.snapshotsSent.Load(),
		BytesSent:         t.bytesSent.Load(),
		FramesReceived:    t.framesReceived.Load(),
		WriteFailures:     t.writeFailures.Load(),
		HooksFired:        t.hooksFired.Load(),
	}
}
