package mcast

import (
	"context"
	"sort"
	"time"

	"github.com/pkg/errors"
)

// Platform names collectors are registered under.
const (
	PlatformEOS  = "eos"
	PlatformNXOS = "nxos"
)

// OutputFormat - Output encoding requested from the device for a command.
type OutputFormat int

const (
	FormatJSON OutputFormat = iota
	FormatXML
	FormatText
)

func (format OutputFormat) String() string {
	switch format {
	case FormatJSON:
		return "json"
	case FormatXML:
		return "xml"
	case FormatText:
		return "text"
	}
	return "unknown"
}

// CommandResult - Outcome of a single command executed on a device.
type CommandResult struct {
	Command string
	OK      bool
	Output  []byte
	Error   string
}

// Device is the connection to a single router, owned by the caller.
// Exec returns one result per command, in order. A non-nil error means the
// device could not be reached at all.
type Device interface {
	Name() string
	Exec(ctx context.Context, format OutputFormat, commands ...string) ([]CommandResult, error)
}

// Collector produces the S,G status metrics of one device for one poll cycle.
// A returned error means the cycle must be skipped for that device.
type Collector interface {
	Platform() string
	Collect(ctx context.Context, device Device, timestamp time.Time) ([]StatusMetric, error)
}

// Registry maps platform names to collectors.
// Register everything before polling starts; lookups are not synchronized with registration.
type Registry struct {
	collectors map[string]Collector
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{collectors: make(map[string]Collector)}
}

// Register adds a collector under its platform name.
func (registry *Registry) Register(collector Collector) error {
	platform := collector.Platform()
	if _, found := registry.collectors[platform]; found {
		return errors.Wrapf(ErrDuplicatePlatform, "platform %q", platform)
	}
	registry.collectors[platform] = collector
	return nil
}

// Lookup returns the collector registered for the platform.
func (registry *Registry) Lookup(platform string) (Collector, error) {
	collector, found := registry.collectors[platform]
	if !found {
		return nil, errors.Wrapf(ErrUnknownPlatform, "platform %q", platform)
	}
	return collector, nil
}

// Platforms returns the registered platform names, sorted.
func (registry *Registry) Platforms() []string {
	platforms := make([]string, 0, len(registry.collectors))
	for platform := range registry.collectors {
		platforms = append(platforms, platform)
	}
	sort.Strings(platforms)
	return platforms
}

// NewDefaultRegistry registers the EOS and NX-OS collectors.
func NewDefaultRegistry(nxosConfig CollectorConfig) *Registry {
	registry := NewRegistry()
	// Fresh registry, registration cannot collide
	_ = registry.Register(NewEOSCollector())
	_ = registry.Register(NewNXOSCollector(nxosConfig))
	return registry
}

func checkCommandResult(command string, results []CommandResult, err error) error {
	if err != nil {
		return errors.Wrapf(ErrCommandFailed, "%s: %v", command, err)
	}
	if len(results) == 0 {
		return errors.Wrapf(ErrCommandFailed, "%s: no result", command)
	}
	if !results[0].OK {
		return errors.Wrapf(ErrCommandFailed, "%s: %s", command, results[0].Error)
	}
	return nil
}
