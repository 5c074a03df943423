package core

import (
	"errors"
	"fmt"
)

type OutcomeKind int

const (
	ClosedNormally OutcomeKind = iota
	ClosedByPeer
	ReadTimeout
	WriteTimeout
	TransportFailure
	ProtocolFailure
)

func (k OutcomeKind) String() string {
	switch k {
	case ClosedNormally:
		return "closed_normally"
	case ClosedByPeer:
		return "closed_by_peer"
	case ReadTimeout:
		return "read_timeout"
	case WriteTimeout:
		return "write_timeout"
	case TransportFailure:
		return "transport_error"
	case ProtocolFailure:
		return "protocol_error"
	default:
		return fmt.Sprintf("outcome(%d)", int(k))
	}
}

// Outcome is the single result of a session.
type Outcome struct {
	Kind OutcomeKind
	Err  error

	// Set for ClosedByPeer.
	CloseCode   int
	CloseReason string
}

// Normal reports whether the session ended without a failure.
func (o Outcome) Normal() bool {
	return o.Kind == ClosedNormally || o.Kind == ClosedByPeer
}

func (o Outcome) String() string {
	switch {
	case o.Kind == ClosedByPeer:
		return fmt.Sprintf("%s (%d %q)", o.Kind, o.CloseCode, o.CloseReason)
	case o.Err != nil:
		return fmt.Sprintf("%s: %v", o.Kind, o.Err)
	default:
		return o.Kind.String()
	}
}

// OutcomeFor classifies a pump error.
func OutcomeFor(err error) Outcome {
	var (
		te *TransportError
		pe *ProtocolError
	)
	switch {
	case err == nil:
		return Outcome{Kind: ClosedNormally}
	case errors.Is(err, ErrReadTimeout):
		return Outcome{Kind: ReadTimeout, Err: err}
	case errors.Is(err, ErrWriteTimeout):
		return Outcome{Kind: WriteTimeout, Err: err}
	case errors.As(err, &pe):
		return Outcome{Kind: ProtocolFailure, Err: err}
	case errors.As(err, &te):
		return Outcome{Kind: TransportFailure, Err: err}
	default:
		return Outcome{Kind: TransportFailure, Err: err}
	}
}
