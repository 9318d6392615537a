package types

import (
	"errors"
	"testing"
)

func TestError_ChainingAndHelpers(t *testing.T) {
	t.Parallel()

	root := errors.New("root")
	err := NewError(ErrAgentTimeout, "member deadline exceeded").
		WithCause(root).
		WithAgent("vision").
		WithRetryable(true)

	if GetErrorCode(err) != ErrAgentTimeout {
		t.Fatalf("expected code %s, got %s", ErrAgentTimeout, GetErrorCode(err))
	}
	if !IsRetryable(err) {
		t.Fatalf("expected retryable")
	}
	if !errors.Is(err, root) {
		t.Fatalf("expected errors.Is unwrap to root")
	}
	if err.Agent != "vision" {
		t.Fatalf("expected agent attribution, got %q", err.Agent)
	}
	if got := err.Error(); got == "" {
		t.Fatalf("expected non-empty error string")
	}
}

func TestError_CodeHelpersOnForeignError(t *testing.T) {
	t.Parallel()

	plain := errors.New("plain")
	if GetErrorCode(plain) != "" {
		t.Fatalf("expected empty code for non-structured error")
	}
	if IsRetryable(plain) {
		t.Fatalf("expected non-retryable for non-structured error")
	}
	if IsErrorCode(plain, ErrUnknownAgent) {
		t.Fatalf("expected IsErrorCode false for non-structured error")
	}
	if !IsErrorCode(NewErrorf(ErrUnknownAgent, "no agent %q", "ghost"), ErrUnknownAgent) {
		t.Fatalf("expected IsErrorCode true")
	}
}
