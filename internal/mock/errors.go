package mock

import "errors"

// Mock package errors.
var (
	// ErrNotSniffing is returned when a capture is requested while no
	// capture was ever started under that id.
	ErrNotSniffing = errors.New("no capture with this id")

	// ErrAlreadyRunning is returned when a service is started twice.
	ErrAlreadyRunning = errors.New("service already running")

	// ErrInjected is the default error of a scripted failure.
	ErrInjected = errors.New("injected failure")

	// ErrBadPayload is returned when an analysis request carries a payload
	// that is not base64.
	ErrBadPayload = errors.New("capture payload is not base64")
)
