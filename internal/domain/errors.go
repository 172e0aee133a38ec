package domain

import "errors"

// Error taxonomy shared by the gateway, the orchestrator and the CLI.
var (
	// ErrTransport marks network and server-side HTTP failures.
	ErrTransport = errors.New("transport error")
	// ErrAuthorization marks rejected or insufficient credentials.
	ErrAuthorization = errors.New("authorization error")
	// ErrUnexpectedStatus marks a response status the client does not handle.
	ErrUnexpectedStatus = errors.New("unexpected status")
	// ErrNoCredentials is fatal: no usable credential was configured.
	ErrNoCredentials = errors.New("no usable credentials configured")
)
