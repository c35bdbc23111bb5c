package errs

import "fmt"

// InfraErrorKind classifies an operational failure of the task manager
// itself, as opposed to a failure of the work it is managing.
type InfraErrorKind string

const (
	QueueFull          InfraErrorKind = "queue_full"
	ShutdownInProgress InfraErrorKind = "shutdown_in_progress"
	Aborted            InfraErrorKind = "aborted"
)

type InfraError struct {
	Kind    InfraErrorKind
	Message string
}

func (e *InfraError) Error() string {
	return fmt.Sprintf("infrastructure error (%s): %s", e.Kind, e.Message)
}

// IsRetryable reports whether the caller (not the worker) may retry the
// operation that produced this error. Only QueueFull is caller-retryable.
func (e *InfraError) IsRetryable() bool {
	return e.Kind == QueueFull
}

func NewInfraError(kind InfraErrorKind, message string) *InfraError {
	return &InfraError{Kind: kind, Message: message}
}
