package swarm

import "fmt"

// ErrorKind partitions execution failures by how the caller should react.
type ErrorKind string

const (
	ErrValidation  ErrorKind = "Validation"
	ErrTimeout     ErrorKind = "Timeout"
	ErrNetwork     ErrorKind = "Network"
	ErrAuth        ErrorKind = "Auth"
	ErrRateLimit   ErrorKind = "RateLimit"
	ErrParse       ErrorKind = "Parse"
	ErrPolicy      ErrorKind = "Policy"
	ErrCircuitOpen ErrorKind = "CircuitOpen"
	ErrContention  ErrorKind = "Contention"
	ErrFatal       ErrorKind = "Fatal"
)

// ExecError is the typed failure recorded on an AgentExecution.
type ExecError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// NewExecError builds a typed execution error.
func NewExecError(kind ErrorKind, format string, args ...any) *ExecError {
	return &ExecError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// IsRetryable reports whether this failure class is worth another attempt.
// Fatal and Validation failures will fail the same way every time.
func (e *ExecError) IsRetryable() bool {
	switch e.Kind {
	case ErrValidation, ErrFatal, ErrAuth, ErrPolicy:
		return false
	}
	return true
}
