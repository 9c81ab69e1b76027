package mcast

import (
	"strconv"
	"strings"
	"time"
)

// MetricName - Name of the emitted status metric.
const MetricName = "mcast_sg_status"

// Tag keys of the status metric.
const (
	TagSource       = "S"
	TagGroup        = "G"
	TagFlags        = "flags"
	TagRPFInterface = "rpf_if_name"
	TagOIFList      = "oif_list"
	TagOIFCount     = "oif_count"
)

// StatusMetric - The status of one flow at one poll timestamp.
type StatusMetric struct {
	Name      string            `json:"name"`
	Value     Status            `json:"value"`
	Tags      map[string]string `json:"tags"`
	Timestamp time.Time         `json:"timestamp"`
}

// MetricOptions - Platform-specific tag selection.
type MetricOptions struct {
	IncludeOIFCount bool
}

// BuildMetric combines a flow, its status and the poll timestamp into a metric.
func BuildMetric(flow FlowRecord, status Status, timestamp time.Time, options MetricOptions) StatusMetric {
	tags := map[string]string{
		TagSource:       flow.Source,
		TagGroup:        flow.Group,
		TagFlags:        flow.Flags,
		TagRPFInterface: flow.RPFInterface,
		TagOIFList:      strings.Join(flow.OIFList, ","),
	}
	if options.IncludeOIFCount {
		tags[TagOIFCount] = strconv.Itoa(len(flow.OIFList))
	}
	return StatusMetric{
		Name:      MetricName,
		Value:     status,
		Tags:      tags,
		Timestamp: timestamp,
	}
}
