// File: api/status.go
// Author: momentics <momentics@gmail.com>
//
// Completion codes delivered to asynchronous continuations.

package api

// Status is the completion code passed to every asynchronous continuation.
type Status int

const (
	// StatusFinish reports completion after at least one suspension.
	StatusFinish Status = iota
	// StatusFinishSync reports completion without ever suspending.
	StatusFinishSync
	// StatusReset reports a fatal connection failure.
	StatusReset
	// StatusTimeout reports that no readiness arrived within the socket timeout.
	StatusTimeout
	// StatusCancel reports that interest was withdrawn by the owner.
	StatusCancel
)

// IsDone reports whether s is a successful completion.
func (s Status) IsDone() bool {
	return s == StatusFinish || s == StatusFinishSync
}

func (s Status) String() string {
	switch s {
	case StatusFinish:
		return "finish"
	case StatusFinishSync:
		return "finish-sync"
	case StatusReset:
		return "reset"
	case StatusTimeout:
		return "timeout"
	case StatusCancel:
		return "cancel"
	default:
		return "unknown"
	}
}
