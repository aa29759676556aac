package moonraker

import "errors"

// Domain errors for the Moonraker client package.
var (
	// ErrInvalidConfig is returned when the client configuration is
	// unusable, e.g. a base URL that is not http or https.
	ErrInvalidConfig = errors.New("moonraker: invalid configuration")

	// ErrRequestFailed is returned when an HTTP request cannot be sent
	// or the server answers with a non-success status.
	ErrRequestFailed = errors.New("moonraker: request failed")

	// ErrInvalidResponse is returned when a response body cannot be
	// decoded into the expected shape.
	ErrInvalidResponse = errors.New("moonraker: invalid response")

	// ErrLoginFailed is returned when JWT login or token refresh is
	// rejected by the server.
	ErrLoginFailed = errors.New("moonraker: login failed")
)
