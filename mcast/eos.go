package mcast

import (
	"bytes"
	"context"
	"strings"
	"time"

	"github.com/antchfx/jsonquery"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// EOSMrouteCommand - EOS command listing the multicast routing table.
const EOSMrouteCommand = "show ip mroute"

// EOS route flags used for classification (see "show ip mroute" legend).
const (
	EOSFlagSPT        = "S" // SPT bit is set
	EOSFlagJoiningSPT = "J" // Joining to the SPT
)

// EOSCollector - S,G flow status collector for Arista EOS.
type EOSCollector struct{}

// NewEOSCollector creates the EOS collector.
func NewEOSCollector() *EOSCollector {
	return &EOSCollector{}
}

// Platform returns PlatformEOS.
func (collector *EOSCollector) Platform() string {
	return PlatformEOS
}

// Collect runs "show ip mroute" and returns one metric per S,G flow.
func (collector *EOSCollector) Collect(ctx context.Context, device Device, timestamp time.Time) ([]StatusMetric, error) {
	results, err := device.Exec(ctx, FormatJSON, EOSMrouteCommand)
	if err := checkCommandResult(EOSMrouteCommand, results, err); err != nil {
		return nil, err
	}

	flows, err := ExtractEOSFlows(results[0].Output)
	if err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{
		"device":     device.Name(),
		"flow_count": len(flows),
	}).Trace("Found EOS S,G flows")

	metrics := make([]StatusMetric, 0, len(flows))
	for _, flow := range flows {
		metrics = append(metrics, BuildMetric(flow, ClassifyEOS(flow), timestamp, MetricOptions{}))
	}
	return metrics, nil
}

// ExtractEOSFlows walks groups[G].groupSources[S] of the "show ip mroute" JSON
// and returns one record per source, skipping wildcard sources.
func ExtractEOSFlows(data []byte) ([]FlowRecord, error) {
	doc, err := jsonquery.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrapf(ErrMalformedOutput, "decoding EOS mroute JSON: %v", err)
	}

	flows := make([]FlowRecord, 0)
	groups := doc.SelectElement("groups")
	if groups == nil {
		return flows, nil
	}
	for _, group := range groups.ChildNodes() {
		if group.Type != jsonquery.ElementNode {
			continue
		}
		sources := group.SelectElement("groupSources")
		if sources == nil {
			continue
		}
		for _, source := range sources.ChildNodes() {
			if source.Type != jsonquery.ElementNode || source.Data == WildcardSource {
				continue
			}
			flows = append(flows, FlowRecord{
				Source:       source.Data,
				Group:        group.Data,
				RPFInterface: jsonChildText(source, "rpfInterface"),
				OIFList:      jsonChildTextList(source, "oifList"),
				Flags:        jsonChildText(source, "routeFlags"),
			})
		}
	}
	return flows, nil
}

// ClassifyEOS derives the flow status from the EOS route flags.
func ClassifyEOS(flow FlowRecord) Status {
	if strings.HasPrefix(flow.Flags, EOSFlagSPT) {
		if len(flow.OIFList) > 0 {
			return StatusActive
		}
		return StatusInactive
	}
	if strings.HasPrefix(flow.Flags, EOSFlagJoiningSPT) {
		return StatusUnavailable
	}
	return StatusInactive
}

func jsonChildText(node *jsonquery.Node, name string) string {
	child := node.SelectElement(name)
	if child == nil {
		return ""
	}
	return child.InnerText()
}

func jsonChildTextList(node *jsonquery.Node, name string) []string {
	values := make([]string, 0)
	child := node.SelectElement(name)
	if child == nil {
		return values
	}
	for _, item := range child.ChildNodes() {
		values = append(values, item.InnerText())
	}
	return values
}
