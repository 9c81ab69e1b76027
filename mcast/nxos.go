package mcast

import (
	"bytes"
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/antchfx/xmlquery"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// NX-OS commands used by the collector.
const (
	NXOSMrouteCommand = "show ip mroute source-tree detail"
	NXOSFDMRCommand   = "show forwarding distribution multicast route"
)

// NX-OS FDMR flags that make a flow unavailable.
const (
	FDMRFlagDropOnRPFFail = "O"
	FDMRFlagDropRoute     = "D"
)

const nxosRouteRowPath = "//ROW_one_route"
const nxosOIFNamePath = "TABLE_oif/ROW_oif/oif-name"

// A zero rate means the flow carries no traffic.
const nxosZeroRatePrefix = "0.000 "

var nxosSGAddressRegex = regexp.MustCompile(`^\((?P<S>\d{1,3}(?:\.\d{1,3}){3})/\d+, (?P<G>\d{1,3}(?:\.\d{1,3}){3})/\d+\)`)

// CollectorConfig - Options of the NX-OS collector.
type CollectorConfig struct {
	// FDMR enables the "show forwarding distribution multicast route" side-channel for flags.
	FDMR bool
}

// NXOSCollector - S,G flow status collector for Cisco NX-OS.
type NXOSCollector struct {
	config CollectorConfig
}

// NewNXOSCollector creates the NX-OS collector.
func NewNXOSCollector(config CollectorConfig) *NXOSCollector {
	return &NXOSCollector{config: config}
}

// Platform returns PlatformNXOS.
func (collector *NXOSCollector) Platform() string {
	return PlatformNXOS
}

// Collect runs the source-tree mroute command (and the FDMR report when enabled)
// and returns one metric per S,G flow.
func (collector *NXOSCollector) Collect(ctx context.Context, device Device, timestamp time.Time) ([]StatusMetric, error) {
	results, err := device.Exec(ctx, FormatXML, NXOSMrouteCommand)
	if err := checkCommandResult(NXOSMrouteCommand, results, err); err != nil {
		return nil, err
	}

	flows, err := ExtractNXOSFlows(results[0].Output)
	if err != nil {
		return nil, err
	}

	// The structured output lacks the forwarding flags
	if collector.config.FDMR {
		flags := collector.collectFDMR(ctx, device)
		for i := range flows {
			flows[i].Flags = flags[flows[i].Key()]
		}
	}
	log.WithFields(log.Fields{
		"device":     device.Name(),
		"flow_count": len(flows),
	}).Trace("Found NX-OS S,G flows")

	metrics := make([]StatusMetric, 0, len(flows))
	for _, flow := range flows {
		status := ClassifyNXOS(flow, collector.config.FDMR)
		metrics = append(metrics, BuildMetric(flow, status, timestamp, MetricOptions{IncludeOIFCount: true}))
	}
	return metrics, nil
}

func (collector *NXOSCollector) collectFDMR(ctx context.Context, device Device) FDMRFlags {
	results, err := device.Exec(ctx, FormatText, NXOSFDMRCommand)
	if err := checkCommandResult(NXOSFDMRCommand, results, err); err != nil {
		log.WithError(err).WithFields(log.Fields{
			"device": device.Name(),
		}).Warn("Failed to collect FDMR flags, continuing without them")
		return FDMRFlags{}
	}
	flags := ParseFDMR(string(results[0].Output))
	if len(flags) == 0 {
		log.WithFields(log.Fields{
			"device": device.Name(),
		}).Debug("No FDMR flags found")
	}
	return flags
}

// ExtractNXOSFlows selects every route row of the "show ip mroute source-tree detail"
// XML and returns one record per S,G flow. A row without a valid "(S/len, G/len)"
// address field fails the whole extraction.
func ExtractNXOSFlows(data []byte) ([]FlowRecord, error) {
	doc, err := xmlquery.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrapf(ErrMalformedOutput, "decoding NX-OS mroute XML: %v", err)
	}
	rows, err := xmlquery.QueryAll(doc, nxosRouteRowPath)
	if err != nil {
		return nil, errors.Wrapf(ErrMalformedOutput, "selecting NX-OS route rows: %v", err)
	}

	flows := make([]FlowRecord, 0, len(rows))
	for _, row := range rows {
		addresses := row.SelectElement("mcast-addrs")
		if addresses == nil {
			return nil, errors.Wrap(ErrMalformedFlow, "route row without mcast-addrs")
		}
		source, group, err := ParseSGAddresses(addresses.InnerText())
		if err != nil {
			return nil, err
		}
		if source == WildcardSource {
			continue
		}

		flow := FlowRecord{
			Source:     source,
			Group:      group,
			OIFList:    make([]string, 0),
			Pending:    xmlOptionalText(row, "pending"),
			RateBuffer: xmlOptionalText(row, "stats-rate-buf"),
		}
		if rpf := xmlOptionalText(row, "route-iif"); rpf != nil {
			flow.RPFInterface = strings.TrimSpace(*rpf)
		}
		for _, oif := range xmlquery.Find(row, nxosOIFNamePath) {
			flow.OIFList = append(flow.OIFList, strings.TrimSpace(oif.InnerText()))
		}
		flows = append(flows, flow)
	}
	return flows, nil
}

// ParseSGAddresses extracts S and G from NX-OS text like "(10.0.0.1/32, 224.1.1.1/32)".
func ParseSGAddresses(text string) (string, string, error) {
	match := nxosSGAddressRegex.FindStringSubmatch(strings.TrimSpace(text))
	if match == nil {
		return "", "", errors.Wrapf(ErrMalformedFlow, "unexpected (S,G) text %q", text)
	}
	return match[nxosSGAddressRegex.SubexpIndex("S")], match[nxosSGAddressRegex.SubexpIndex("G")], nil
}

// ClassifyNXOS derives the flow status from the NX-OS pending state, the FDMR
// flags (only when flagsAware) and the traffic rate.
func ClassifyNXOS(flow FlowRecord, flagsAware bool) Status {
	if flow.Pending != nil && *flow.Pending == "true" {
		return StatusUnavailable
	}
	if flagsAware && (strings.Contains(flow.Flags, FDMRFlagDropOnRPFFail) || strings.Contains(flow.Flags, FDMRFlagDropRoute)) {
		return StatusUnavailable
	}
	if flow.RateBuffer != nil && strings.HasPrefix(*flow.RateBuffer, nxosZeroRatePrefix) {
		return StatusInactive
	}
	return StatusActive
}

func xmlOptionalText(node *xmlquery.Node, name string) *string {
	child := node.SelectElement(name)
	if child == nil {
		return nil
	}
	text := child.InnerText()
	return &text
}
