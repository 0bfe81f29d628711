package browser

import "fmt"

// ResourceError marks a session or proxy-artifact construction failure.
// It aborts only the current account; the orchestrator skips ahead after
// best-effort cleanup of whatever was partially created.
type ResourceError struct {
	Op  string
	Err error
}

func (e *ResourceError) Error() string {
	return fmt.Sprintf("resource failure during %s: %v", e.Op, e.Err)
}

func (e *ResourceError) Unwrap() error {
	return e.Err
}
