package domain

import "time"

// RunState is the position of a sync run in its state machine.
type RunState string

const (
	StateNotStarted  RunState = "not_started"
	StateConnecting  RunState = "connecting"
	StateFetching    RunState = "fetching"
	StateNormalizing RunState = "normalizing"
	StateReconciling RunState = "reconciling"
	StateCompleted   RunState = "completed"

	// terminal failures
	StateConnectionFailed RunState = "connection_failed"
	StateFetchFailed      RunState = "fetch_failed"
	StateRejected         RunState = "rejected"
	StateCancelled        RunState = "cancelled"
)

func (s RunState) Terminal() bool {
	switch s {
	case StateCompleted, StateConnectionFailed, StateFetchFailed, StateRejected, StateCancelled:
		return true
	}
	return false
}

// SyncResult is returned to the caller of a sync run. Success means the run
// completed; individual record failures are listed in Errors.
type SyncResult struct {
	RunID      string    `json:"run_id"`
	State      RunState  `json:"state"`
	Success    bool      `json:"success"`
	Count      int       `json:"count"`
	Created    int       `json:"created"`
	Updated    int       `json:"updated"`
	Unchanged  int       `json:"unchanged"`
	Errors     []string  `json:"errors"`
	Message    string    `json:"message"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

type ConnectionStatus struct {
	Success        bool   `json:"success"`
	Message        string `json:"message"`
	OperationCount int    `json:"operation_count"`
	Endpoint       string `json:"endpoint,omitempty"`
}

type CleanupResult struct {
	Success bool   `json:"success"`
	Count   int    `json:"count"`
	Message string `json:"message"`
}

// RawReply is the decoded <Op>Response element of one remote call.
type RawReply struct {
	Operation string
	Payload   map[string]any
}
