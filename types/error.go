package types

import "fmt"

// ErrorCode represents a unified error code across the engine.
type ErrorCode string

// Routing error codes
const (
	ErrHandoffLoopExceeded ErrorCode = "HANDOFF_LOOP_EXCEEDED"
	ErrUnknownAgent        ErrorCode = "UNKNOWN_AGENT"
	ErrTaskIncomplete      ErrorCode = "TASK_INCOMPLETE"
	ErrRuntimeStopped      ErrorCode = "RUNTIME_STOPPED"
	ErrQueueFull           ErrorCode = "QUEUE_FULL"
	ErrSessionNotFound     ErrorCode = "SESSION_NOT_FOUND"
)

// Agent error codes
const (
	ErrAgentPanic      ErrorCode = "AGENT_PANIC"
	ErrAgentTimeout    ErrorCode = "AGENT_TIMEOUT"
	ErrAgentNotRunning ErrorCode = "AGENT_NOT_RUNNING"
	ErrProcessFailed   ErrorCode = "PROCESS_FAILED"
	ErrToolNotFound    ErrorCode = "TOOL_NOT_FOUND"
)

// Synthesis error codes
const (
	ErrConsensusFailure  ErrorCode = "CONSENSUS_FAILURE"
	ErrDebateExhausted   ErrorCode = "DEBATE_EXHAUSTED"
	ErrAllMembersFailed  ErrorCode = "ALL_MEMBERS_FAILED"
	ErrTeamMisconfigured ErrorCode = "TEAM_MISCONFIGURED"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Agent     string    `json:"agent,omitempty"`
	Retryable bool      `json:"retryable"`
	Cause     error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// NewErrorf creates a new Error with a formatted message.
func NewErrorf(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithAgent attributes the error to the agent that produced it.
func (e *Error) WithAgent(agent string) *Error {
	e.Agent = agent
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if e, ok := err.(*Error); ok {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	if e, ok := err.(*Error); ok {
		return e.Code
	}
	return ""
}

// IsErrorCode reports whether err is an *Error carrying the given code.
func IsErrorCode(err error, code ErrorCode) bool {
	return GetErrorCode(err) == code
}
