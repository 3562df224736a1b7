package indexer

import "sync/atomic"

// State is the orchestrator's run phase. A run moves strictly forward
// through the phases and returns to idle when reporting completes.
type State int32

const (
	StateIdle State = iota
	StateCollecting
	StateChunking
	StateEmbedding
	StateStoring
	StateReporting
)

func (s State) String() string {
	switch s {
	case StateCollecting:
		return "collecting"
	case StateChunking:
		return "chunking"
	case StateEmbedding:
		return "embedding"
	case StateStoring:
		return "storing"
	case StateReporting:
		return "reporting"
	default:
		return "idle"
	}
}

// runState holds the current phase, readable from any goroutine.
type runState struct {
	v atomic.Int32
}

func (r *runState) set(s State) {
	r.v.Store(int32(s))
}

func (r *runState) get() State {
	return State(r.v.Load())
}
