package common

import "time"

// App info.
const (
	AppName    = "mcastmon"
	AppVersion = "0.1.0"
	AppAuthor  = "HON95"
)

// PollEntry - Outcome of polling a single device once.
type PollEntry struct {
	Time      time.Time
	Device    string
	Platform  string
	Duration  time.Duration
	Success   bool
	FlowCount int
}
