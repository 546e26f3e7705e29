package faults

import (
	"errors"
	"testing"
)

func TestWrapTagsMarker(t *testing.T) {
	inner := errors.New("boom")
	err := Wrap(ErrTransport, "session", "send", "socket not open", inner)
	if !errors.Is(err, ErrTransport) {
		t.Error("wrapped error should match ErrTransport")
	}
	if !errors.Is(err, inner) {
		t.Error("wrapped error should match the inner error")
	}
	if errors.Is(err, ErrProtocol) {
		t.Error("wrapped error should not match ErrProtocol")
	}
}

func TestWrapNilMarkerDefaultsToProtocol(t *testing.T) {
	err := Wrap(nil, "session", "handshake", "no acknowledgement", nil)
	if !errors.Is(err, ErrProtocol) {
		t.Error("nil marker should default to ErrProtocol")
	}
}

func TestShouldReconnect(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"transport", Wrap(ErrTransport, "session", "send", "", nil), true},
		{"protocol", Wrap(ErrProtocol, "session", "handshake", "", nil), false},
		{"resource", Wrap(ErrResource, "upload", "begin", "", nil), false},
		{"application", Wrap(ErrApplication, "run", "start", "", nil), false},
		{"plain", errors.New("other"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ShouldReconnect(tt.err); got != tt.want {
				t.Errorf("ShouldReconnect = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestServerErrorCode(t *testing.T) {
	se := &ServerError{ErrCode: "quota_exceeded", Message: "plan limit reached"}
	err := Wrap(ErrResource, "upload", "begin", "rejected", se)
	if got := Code(err); got != "quota_exceeded" {
		t.Errorf("Code = %q, want quota_exceeded", got)
	}
	if got := Code(errors.New("plain")); got != "" {
		t.Errorf("Code on plain error = %q, want empty", got)
	}
}
