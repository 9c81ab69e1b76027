// Package mcast turns vendor multicast routing output into (S,G) flow status metrics.
//
// The package holds the per-platform collectors and the pure extraction and
// classification functions they are built from. Collectors never schedule
// themselves or open device connections; the caller supplies a Device and the
// poll timestamp and receives the metrics back.
package mcast

import (
	"github.com/pkg/errors"
)

// WildcardSource - Source address of (*,G) entries, which are not S,G flows.
const WildcardSource = "0.0.0.0"

var (
	// ErrCommandFailed - The device did not return usable output for a command.
	ErrCommandFailed = errors.New("command failed")
	// ErrMalformedFlow - A flow entry did not have the expected (S,G) layout.
	ErrMalformedFlow = errors.New("malformed flow entry")
	// ErrMalformedOutput - Command output could not be decoded at all.
	ErrMalformedOutput = errors.New("malformed command output")
	// ErrUnknownPlatform - No collector is registered for the platform.
	ErrUnknownPlatform = errors.New("unknown platform")
	// ErrDuplicatePlatform - A collector is already registered for the platform.
	ErrDuplicatePlatform = errors.New("duplicate platform")
)

// FlowKey identifies a flow by source and group address.
type FlowKey struct {
	Source string
	Group  string
}

// FlowRecord - One (S,G) multicast flow found on a device during a single poll.
type FlowRecord struct {
	Source       string
	Group        string
	RPFInterface string
	OIFList      []string
	// Flags holds EOS route flags or the NX-OS FDMR flags joined to this flow.
	Flags string
	// NX-OS only, nil when the device did not report the field.
	Pending    *string
	RateBuffer *string
}

// Key returns the (S,G) key of the flow.
func (flow FlowRecord) Key() FlowKey {
	return FlowKey{Source: flow.Source, Group: flow.Group}
}

// Status - Normalized flow health.
type Status int

const (
	// StatusActive - The flow has at least one outgoing interface.
	StatusActive Status = 0
	// StatusInactive - The flow has no outgoing interface or no traffic.
	StatusInactive Status = 1
	// StatusUnavailable - The flow is still forming or is being dropped.
	StatusUnavailable Status = 2
)

func (status Status) String() string {
	switch status {
	case StatusActive:
		return "active"
	case StatusInactive:
		return "inactive"
	case StatusUnavailable:
		return "unavailable"
	}
	return "unknown"
}
