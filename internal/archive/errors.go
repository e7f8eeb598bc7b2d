package archive

import "errors"

// Sentinel errors classifying archival failures. Adapters wrap the
// underlying driver error with one of these so callers can match with
// errors.Is regardless of the backend.
var (
	// ErrConfiguration indicates bad or ambiguous job configuration, including
	// settings of the wrong concrete type for an adapter.
	ErrConfiguration = errors.New("archive: configuration error")

	// ErrProviderNotFound indicates that a provider name matched zero or more
	// than one registered adapter for the requested capability.
	ErrProviderNotFound = wrapConfiguration("provider not found")

	// ErrConfigurationBinding indicates that a provider settings section could
	// not be bound to the provider's settings shape.
	ErrConfigurationBinding = wrapConfiguration("settings binding failed")

	// ErrConnection indicates that a store could not be reached.
	ErrConnection = errors.New("archive: connection error")

	// ErrScriptExecution indicates that the target pre-script failed.
	ErrScriptExecution = errors.New("archive: script execution failed")

	// ErrMissingKey indicates that a record lacks the configured key field.
	ErrMissingKey = errors.New("archive: record is missing key field")
)

// classError is a sentinel that is itself a refinement of a parent class.
type classError struct {
	msg    string
	parent error
}

func (e *classError) Error() string { return "archive: " + e.msg }

func (e *classError) Unwrap() error { return e.parent }

func wrapConfiguration(msg string) error {
	return &classError{msg: msg, parent: ErrConfiguration}
}

// IsFatalToSchedule reports whether err prevents the job from ever being
// scheduled, as opposed to failing a single run.
func IsFatalToSchedule(err error) bool {
	return errors.Is(err, ErrConfiguration)
}
