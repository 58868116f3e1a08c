package models

import (
	"fmt"
	"time"
)

// ConnState is the lifecycle state of the market stream connection.
type ConnState int

const (
	ConnDisconnected ConnState = iota
	ConnConnecting
	ConnOpen
	ConnClosing
)

func (s ConnState) String() string {
	switch s {
	case ConnDisconnected:
		return "DISCONNECTED"
	case ConnConnecting:
		return "CONNECTING"
	case ConnOpen:
		return "OPEN"
	case ConnClosing:
		return "CLOSING"
	default:
		return "UNKNOWN"
	}
}

func (s ConnState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *ConnState) UnmarshalText(b []byte) error {
	switch string(b) {
	case "DISCONNECTED":
		*s = ConnDisconnected
	case "CONNECTING":
		*s = ConnConnecting
	case "OPEN":
		*s = ConnOpen
	case "CLOSING":
		*s = ConnClosing
	default:
		return fmt.Errorf("unknown connection state %q", b)
	}
	return nil
}

// ConnStatus is the observable state of the stream connection, published to
// subscribers on every transition.
type ConnStatus struct {
	State        ConnState  `json:"state"`
	URL          string     `json:"url"`
	LastError    string     `json:"last_error,omitempty"`
	LastOpenedAt *time.Time `json:"last_opened_at,omitempty"`
	// Attempt counts consecutive failed connects since the last open.
	Attempt     int        `json:"attempt"`
	NextRetryAt *time.Time `json:"next_retry_at,omitempty"`
	// ManualClose is true after an explicit Close until the next Open.
	ManualClose bool      `json:"manual_close"`
	ChangedAt   time.Time `json:"changed_at"`
}
