package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestNetworkError(t *testing.T) {
	baseErr := errors.New("connection refused")

	t.Run("retriable error", func(t *testing.T) {
		err := NewNetworkError("create_order", baseErr)

		if !err.IsRetriable() {
			t.Error("Expected error to be retriable")
		}
		if err.Error() != "create_order: connection refused" {
			t.Errorf("Error message = %q, want %q", err.Error(), "create_order: connection refused")
		}
		if !errors.Is(err, baseErr) {
			t.Error("Expected error to wrap baseErr")
		}
	})

	t.Run("IsRetriable helper through wrapping", func(t *testing.T) {
		wrapped := fmt.Errorf("fetch_order: %w", NewNetworkError("dial", baseErr))
		fatal := NewFatalNetworkError("auth", baseErr)

		if !IsRetriable(wrapped) {
			t.Error("IsRetriable should see through fmt.Errorf wrapping")
		}
		if IsRetriable(fatal) {
			t.Error("IsRetriable should return false for fatal error")
		}
		if IsRetriable(errors.New("plain error")) {
			t.Error("IsRetriable should return false for plain error")
		}
	})
}

func TestVenueError(t *testing.T) {
	err := &VenueError{Code: "51008", Message: "insufficient balance"}

	if IsRetriable(err) {
		t.Error("VenueError should never be retriable")
	}
	if got, want := err.Error(), "venue [51008]: insufficient balance"; got != want {
		t.Errorf("Error message = %q, want %q", got, want)
	}
	if got, want := (&VenueError{Message: "rejected"}).Error(), "venue: rejected"; got != want {
		t.Errorf("Error message = %q, want %q", got, want)
	}
}

func TestConfigError(t *testing.T) {
	baseErr := errors.New("must be positive")
	err := &ConfigError{Field: "broker.cash", Err: baseErr}

	if err.IsRetriable() {
		t.Error("ConfigError should never be retriable")
	}

	expected := "config error [broker.cash]: must be positive"
	if err.Error() != expected {
		t.Errorf("Error message = %q, want %q", err.Error(), expected)
	}
}
