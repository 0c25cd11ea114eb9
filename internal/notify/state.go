package notify

// ConnectionState notification socket connection state
type ConnectionState int32

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
)

// String returns the string representation of the state
func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "Disconnected"
	case StateConnecting:
		return "Connecting"
	case StateConnected:
		return "Connected"
	default:
		return "Unknown"
	}
}

// SyncStatus is a coarse connectivity indicator derived from the connection
// state and the retry bookkeeping.
type SyncStatus int32

const (
	SyncStatusSyncing SyncStatus = iota
	SyncStatusSynced
	SyncStatusFailed
)

func (s SyncStatus) String() string {
	switch s {
	case SyncStatusSyncing:
		return "SYNCING"
	case SyncStatusSynced:
		return "SYNCED"
	case SyncStatusFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Status is a point-in-time snapshot of the socket.
type Status struct {
	State        ConnectionState
	Attempts     int  // Consecutive reconnect attempts since the last open
	RetryPending bool // A reconnect timer is scheduled
	GaveUp       bool // Retries were exhausted after the last failure
}

// Sync derives the sync status from the snapshot.
//
// A disconnected socket with nothing in flight reports FAILED, whether it gave
// up retrying or was never connected.
func (s Status) Sync() SyncStatus {
	switch {
	case s.State == StateConnected:
		return SyncStatusSynced
	case s.State == StateConnecting || s.RetryPending:
		return SyncStatusSyncing
	default:
		return SyncStatusFailed
	}
}
