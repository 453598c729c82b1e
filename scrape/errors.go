package scrape

import "fmt"

// TransientError is a navigation or selector failure that may clear on
// retry (timeouts, flaky selectors). The retry policy treats it as
// retryable; after the attempt budget the target is skipped.
type TransientError struct {
	Target string
	Cause  error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("scrape: transient failure on %s: %v", e.Target, e.Cause)
}

func (e *TransientError) Unwrap() error { return e.Cause }

// PermanentError is an unreachable or invalid target. It is marked and
// skipped, never retried until the next discovery cycle revalidates it.
type PermanentError struct {
	Target string
	Cause  error
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("scrape: permanent failure on %s: %v", e.Target, e.Cause)
}

func (e *PermanentError) Unwrap() error { return e.Cause }
