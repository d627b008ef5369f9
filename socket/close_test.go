package socket

import (
	"encoding/binary"
	"strings"
	"testing"
)

func TestCloseCode_Values(t *testing.T) {
	tests := []struct {
		code CloseCode
		want uint16
		name string
	}{
		{CloseNormal, 1000, "normal"},
		{CloseGoingAway, 1001, "going_away"},
		{CloseUnsupportedData, 1007, "unsupported_data"},
		{CloseInternalError, 1011, "internal_error"},
		{CloseTryAgainLater, 1013, "try_again_later"},
		{CloseUnauthorized, 3000, "unauthorized"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if uint16(tt.code) != tt.want {
				t.Errorf("code = %d, want %d", uint16(tt.code), tt.want)
			}
			if !tt.code.Valid() {
				t.Errorf("Valid() = false for %d", tt.want)
			}
			if tt.code.String() != tt.name {
				t.Errorf("String() = %q, want %q", tt.code.String(), tt.name)
			}
		})
	}
}

func TestCloseCode_Unknown(t *testing.T) {
	c := CloseCode(4321)
	if c.Valid() {
		t.Error("Valid() = true for a code outside the set")
	}
	if c.String() != "4321" {
		t.Errorf("String() = %q, want %q", c.String(), "4321")
	}
}

func TestCloseCode_Frame(t *testing.T) {
	payload := CloseUnauthorized.Frame(ReasonInvalidKey)

	if got := binary.BigEndian.Uint16(payload[:2]); got != 3000 {
		t.Errorf("frame code = %d, want 3000", got)
	}
	if got := string(payload[2:]); got != ReasonInvalidKey {
		t.Errorf("frame reason = %q, want %q", got, ReasonInvalidKey)
	}
}

func TestCloseCode_FrameTruncatesReason(t *testing.T) {
	tests := []struct {
		name   string
		reason string
	}{
		{"ascii", strings.Repeat("a", 300)},
		{"multibyte boundary", strings.Repeat("a", 122) + "é"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload := CloseNormal.Frame(tt.reason)
			if len(payload) > 125 {
				t.Errorf("frame length = %d, want <= 125", len(payload))
			}
			if !strings.HasPrefix(tt.reason, string(payload[2:])) {
				t.Errorf("reason %q is not a prefix of the input", payload[2:])
			}
		})
	}
}
