package core

import (
	"fmt"
	"strings"
)

// Policy decides what a full outbound queue does to a producer.
type Policy int

const (
	// Block waits until the sender pump frees a slot.
	Block Policy = iota
	// FailFast returns ErrQueueFull immediately.
	FailFast
)

func (p Policy) String() string {
	switch p {
	case Block:
		return "block"
	case FailFast:
		return "fail-fast"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "block":
		return Block, nil
	case "fail-fast", "failfast", "fail_fast":
		return FailFast, nil
	default:
		return 0, fmt.Errorf("unknown backpressure policy %q", s)
	}
}
