// File: internal/login/errors.go
// Description: Per-stage failure types for the login flow. Each stage of the
// flow reports its own tagged error so the batch log makes clear where an
// account's run stopped without reading a stack trace.

package login

import "fmt"

// NavigationError reports that the browser could not reach the target page.
type NavigationError struct {
	URL string
	Err error
}

func (e *NavigationError) Error() string {
	return fmt.Sprintf("navigation to %s failed: %v", e.URL, e.Err)
}

func (e *NavigationError) Unwrap() error { return e.Err }

// ElementNotFoundError reports that a required page element never became
// visible within its wait bound.
type ElementNotFoundError struct {
	Stage    string
	Selector string
}

func (e *ElementNotFoundError) Error() string {
	return fmt.Sprintf("%s: element not found: %s", e.Stage, e.Selector)
}

// OTPTimeoutError reports that no verification code could be retrieved
// while the login form was waiting for one.
type OTPTimeoutError struct {
	Err error
}

func (e *OTPTimeoutError) Error() string {
	return fmt.Sprintf("verification code retrieval failed: %v", e.Err)
}

func (e *OTPTimeoutError) Unwrap() error { return e.Err }

// VerificationError reports that the flow completed all input stages but
// the page never showed a signed-in state.
type VerificationError struct {
	Location string
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("login not confirmed, page remained signed out at %s", e.Location)
}
