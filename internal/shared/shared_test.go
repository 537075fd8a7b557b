package shared

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
)

func TestLogger(t *testing.T) {
	t.Run("writes to the given writer", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewLogger(&buf)
		logger.Info("hello", "component", "test")

		if !strings.Contains(buf.String(), "hello") {
			t.Errorf("expected log output to contain message, got %q", buf.String())
		}
	})

	t.Run("child loggers carry fields", func(t *testing.T) {
		var buf bytes.Buffer
		logger := WithLogger(NewLogger(&buf), "component", "spotify")
		logger.Info("request")

		if !strings.Contains(buf.String(), "component=spotify") {
			t.Errorf("expected component field, got %q", buf.String())
		}
	})

	t.Run("level filters output", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewLogger(&buf)
		SetLogLevel(logger, log.ErrorLevel)
		logger.Info("hidden")

		if buf.Len() != 0 {
			t.Errorf("expected no output below error level, got %q", buf.String())
		}
	})
}

func TestGenerateState(t *testing.T) {
	a, err := GenerateState()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, _ := GenerateState()

	if len(a) != 32 {
		t.Errorf("expected 32 hex characters, got %d", len(a))
	}
	if a == b {
		t.Error("expected distinct state values")
	}
}

func TestNewHTTPClient(t *testing.T) {
	if got := NewHTTPClient(0).Timeout; got != DefaultHTTPTimeout {
		t.Errorf("expected default timeout, got %v", got)
	}
	if got := NewHTTPClient(5 * time.Second).Timeout; got != 5*time.Second {
		t.Errorf("expected 5s timeout, got %v", got)
	}
}

func TestErrorKind(t *testing.T) {
	tc := []struct {
		name string
		err  error
		want string
	}{
		{name: "nil", err: nil, want: ""},
		{name: "network", err: fmt.Errorf("%w: dial tcp", ErrNetwork), want: "network"},
		{name: "timeout", err: ErrTimeout, want: "network"},
		{name: "auth", err: fmt.Errorf("%w: bad password", ErrInvalidCredentials), want: "auth"},
		{name: "no refresh token", err: ErrNoRefreshToken, want: "auth"},
		{name: "protocol", err: fmt.Errorf("%w: not json", ErrProtocol), want: "protocol"},
		{name: "partial", err: &PartialFailureError{Added: 100, Total: 250, Err: ErrAPIRequest}, want: "partial"},
		{name: "input", err: ErrInvalidInput, want: "input"},
		{name: "unknown", err: errors.New("boom"), want: "unknown"},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			if got := Kind(tt.err); got != tt.want {
				t.Errorf("Kind() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPartialFailureError(t *testing.T) {
	err := error(&PartialFailureError{Added: 200, Total: 250, Err: fmt.Errorf("%w: 502", ErrAPIRequest)})

	if !errors.Is(err, ErrPartialFailure) {
		t.Error("expected errors.Is to match ErrPartialFailure")
	}
	if !errors.Is(err, ErrAPIRequest) {
		t.Error("expected the cause to stay reachable")
	}

	var pf *PartialFailureError
	if !errors.As(err, &pf) || pf.Added != 200 {
		t.Errorf("expected Added=200, got %+v", pf)
	}
	if !strings.Contains(err.Error(), "added 200 of 250") {
		t.Errorf("unexpected message %q", err.Error())
	}
}
