package models

import "time"

type FeedLevel string

const (
	FeedUnknown  FeedLevel = "UNKNOWN"
	FeedOK       FeedLevel = "OK"
	FeedWarning  FeedLevel = "WARNING"
	FeedCritical FeedLevel = "CRITICAL"
)

// FeedStatus is the health of the upstream market feed as reported in frames.
type FeedStatus struct {
	Level     FeedLevel  `json:"level"`
	Status    string     `json:"status,omitempty"`
	Source    string     `json:"source,omitempty"`
	Message   string     `json:"message,omitempty"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// DashboardStatus combines transport state and feed health for the status
// indicator.
type DashboardStatus struct {
	Connection ConnStatus `json:"connection"`
	Feed       FeedStatus `json:"feed"`
	LastPongAt *time.Time `json:"last_pong_at,omitempty"`
}
