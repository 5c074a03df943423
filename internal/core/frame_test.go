package core

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestFrame_Immutable(t *testing.T) {
	payload := []byte("abc")
	f := Binary(payload)
	payload[0] = 'z'
	if f.Text() != "abc" {
		t.Fatalf("frame changed with its source slice: %q", f.Text())
	}

	d := f.Data()
	d[1] = 'z'
	if f.Text() != "abc" {
		t.Fatalf("frame changed through Data: %q", f.Text())
	}
}

func TestFrame_Accessors(t *testing.T) {
	tests := []struct {
		f       Frame
		kind    FrameKind
		control bool
		str     string
	}{
		{Text("hi"), FrameText, false, `text("hi")`},
		{Binary([]byte{1, 2}), FrameBinary, false, "binary(2 bytes)"},
		{Ping(nil), FramePing, true, "ping(0 bytes)"},
		{Pong([]byte("p")), FramePong, true, "pong(1 bytes)"},
		{Close(CloseGoingAway, "bye"), FrameClose, true, `close(1001, "bye")`},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			if tt.f.Kind() != tt.kind {
				t.Fatalf("Kind = %s", tt.f.Kind())
			}
			if tt.f.Kind().IsControl() != tt.control {
				t.Fatalf("IsControl = %v", tt.f.Kind().IsControl())
			}
			if tt.f.String() != tt.str {
				t.Fatalf("String = %s, want %s", tt.f.String(), tt.str)
			}
			if tt.f.IsZero() {
				t.Fatal("constructed frame reports zero")
			}
		})
	}

	c := Close(CloseNormalClosure, "done")
	if c.CloseCode() != CloseNormalClosure || c.CloseReason() != "done" {
		t.Fatalf("close frame = %s", c)
	}
	var zero Frame
	if !zero.IsZero() {
		t.Fatal("zero frame not zero")
	}
}

func TestParsePolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    Policy
		wantErr bool
	}{
		{"", Block, false},
		{"block", Block, false},
		{" BLOCK ", Block, false},
		{"fail-fast", FailFast, false},
		{"failfast", FailFast, false},
		{"fail_fast", FailFast, false},
		{"drop", 0, true},
	}
	for _, tt := range tests {
		got, err := ParsePolicy(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Fatalf("ParsePolicy(%q) expected error", tt.in)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Fatalf("ParsePolicy(%q) = %s, %v", tt.in, got, err)
		}
	}
	if Block.String() != "block" || FailFast.String() != "fail-fast" {
		t.Fatalf("policy names: %s %s", Block, FailFast)
	}
}

func TestOutcomeFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want OutcomeKind
	}{
		{"nil", nil, ClosedNormally},
		{"read timeout", fmt.Errorf("%w: i/o timeout", ErrReadTimeout), ReadTimeout},
		{"write timeout", fmt.Errorf("%w: i/o timeout", ErrWriteTimeout), WriteTimeout},
		{"protocol", &ProtocolError{Reason: "frame too large"}, ProtocolFailure},
		{"transport", &TransportError{Op: "read", Err: errors.New("reset")}, TransportFailure},
		{"unknown", context.Canceled, TransportFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := OutcomeFor(tt.err)
			if o.Kind != tt.want {
				t.Fatalf("OutcomeFor(%v) = %s, want %s", tt.err, o.Kind, tt.want)
			}
			if tt.err != nil && o.Err != tt.err {
				t.Fatalf("outcome lost its error: %v", o.Err)
			}
		})
	}
}

func TestOutcome_Normal(t *testing.T) {
	for k := ClosedNormally; k <= ProtocolFailure; k++ {
		want := k == ClosedNormally || k == ClosedByPeer
		if got := (Outcome{Kind: k}).Normal(); got != want {
			t.Fatalf("%s Normal = %v", k, got)
		}
	}
}

func TestErrors_Unwrap(t *testing.T) {
	base := errors.New("refused")
	ce := &ConnectError{URL: "ws://x", StatusCode: 403, Err: base}
	if !errors.Is(ce, base) {
		t.Fatal("ConnectError does not unwrap")
	}
	if ce.Error() != "connect ws://x: refused (status 403)" {
		t.Fatalf("ConnectError = %q", ce.Error())
	}
	if !errors.Is(&TransportError{Op: "write", Err: base}, base) {
		t.Fatal("TransportError does not unwrap")
	}
	if (&ProtocolError{Reason: "bad opcode"}).Error() != "protocol error: bad opcode" {
		t.Fatal("ProtocolError message")
	}
}
