package event

import "time"

// Topics published during a run.
const (
	// RunTimedOut is published when the deadline guard flushed a run.
	// The payload is a RunInfo.
	RunTimedOut = "RunTimedOut"
	// FlushCompleted is published after a successful flush. The payload is a FlushResult.
	FlushCompleted = "FlushCompleted"
	// FlushFailed is published after a flush that returned an error. The
	// payload is a FlushResult with Err set.
	FlushFailed = "FlushFailed"
)

// DefaultTopics are created by NewPublisher.
var DefaultTopics = []string{RunTimedOut, FlushCompleted, FlushFailed}

// Topic subscription list for a single topic.
type Topic struct {
	timeout     time.Duration // Publish waits at most this long; zero waits forever.
	subscribers []Subscriber
}

// RunInfo identifies one run of a component.
type RunInfo struct {
	RunID     string
	Component string
	Namespace string
}

// FlushResult describes the end of a flush.
type FlushResult struct {
	RunInfo
	Err error
}
