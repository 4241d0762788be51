package browser

import "errors"

// Session errors.
var (
	// ErrNavigation is returned when a page could not be loaded.
	ErrNavigation = errors.New("navigation failed")

	// ErrSessionFault is returned when the browser could not be launched or
	// crashed while in use.
	ErrSessionFault = errors.New("browser session fault")

	// ErrSessionClosed is returned when a closed session is used.
	ErrSessionClosed = errors.New("browser session closed")

	// ErrNoFrame is returned when an element has no accessible frame document.
	ErrNoFrame = errors.New("element has no frame document")

	// ErrScript is returned when a page script throws.
	ErrScript = errors.New("script raised an exception")
)
