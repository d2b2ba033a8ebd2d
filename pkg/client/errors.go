package client

// PromptError reports a transport-level failure contacting the account
// domain itself. The caller should retry or re-prompt the user; nothing is
// known to be misconfigured.
type PromptError struct {
	Err error
}

func (e *PromptError) Error() string { return "well-known lookup: " + e.Err.Error() }

func (e *PromptError) Unwrap() error { return e.Err }

// FailError reports structurally broken delegation content: a malformed URL
// inside the well-known document, or a delegated target that failed
// validation. The caller should treat the configuration as broken rather
// than retry.
type FailError struct {
	Err error
}

func (e *FailError) Error() string { return "broken homeserver delegation: " + e.Err.Error() }

func (e *FailError) Unwrap() error { return e.Err }
