package realtime

import "fmt"

// DisconnectedError reports a lost listen connection. Transient: the
// listener retries with backoff and resumes on the same channel. Events
// raised while disconnected are lost (at-most-once delivery).
type DisconnectedError struct {
	Err error
}

func (e *DisconnectedError) Error() string {
	return fmt.Sprintf("listener disconnected: %v", e.Err)
}

func (e *DisconnectedError) Unwrap() error { return e.Err }
