package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestCodedErrorFormatting(t *testing.T) {
	err := New(CodeNotFound, "compose surface not found", nil)
	if got, want := err.Error(), "NOT_FOUND: compose surface not found"; got != want {
		t.Fatalf("Error() = %q; want %q", got, want)
	}

	cause := errors.New("dial tcp: refused")
	err = New(CodeTransport, "dispatch failed", cause)
	if got, want := err.Error(), "TRANSPORT: dispatch failed: dial tcp: refused"; got != want {
		t.Fatalf("Error() = %q; want %q", got, want)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("errors.Is(err, cause) = false; want true")
	}
}

func TestCodeOfThroughWrapping(t *testing.T) {
	err := fmt.Errorf("automation run: %w", New(CodeAuth, "login not verified", nil))
	if got := CodeOf(err); got != CodeAuth {
		t.Fatalf("CodeOf() = %q; want %q", got, CodeAuth)
	}
	if !Is(err, CodeAuth) {
		t.Fatalf("Is(err, AUTH) = false; want true")
	}
	if Is(err, CodeTransport) {
		t.Fatalf("Is(err, TRANSPORT) = true; want false")
	}
	if got := CodeOf(errors.New("plain")); got != "" {
		t.Fatalf("CodeOf(plain) = %q; want empty", got)
	}
	if Is(nil, CodeAuth) {
		t.Fatalf("Is(nil) = true; want false")
	}
}

func TestMessage(t *testing.T) {
	if got := Message(New(CodeValidation, "text is required", nil)); got != "text is required" {
		t.Fatalf("Message() = %q; want %q", got, "text is required")
	}
	if got := Message(errors.New("boom")); got != "boom" {
		t.Fatalf("Message() = %q; want %q", got, "boom")
	}
	if got := Message(nil); got != "" {
		t.Fatalf("Message(nil) = %q; want empty", got)
	}
}
