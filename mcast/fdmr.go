package mcast

import (
	"net/netip"
	"regexp"
	"strings"
)

// FDMRFlags - Forwarding flags per flow, from "show forwarding distribution multicast route".
//
// Legend:
//	C = Control Route
//	D = Drop Route
//	G = Local Group (directly connected receivers)
//	O = Drop on RPF Fail
//	P = Punt to supervisor
//	L = SRC behind L3
//	d = Decap Route
type FDMRFlags map[FlowKey]string

var fdmrRouteRegex = regexp.MustCompile(`^\s*\(([^/\s]+)/32, ([^/\s]+)/32\), RPF Interface: .*?, flags: (\S*)\s*$`)

// ParseFDMR reads the flags of every (S/32, G/32) route in the FDMR report.
// Lines that do not parse are ignored, so empty or foreign text gives an empty map.
func ParseFDMR(text string) FDMRFlags {
	flags := make(FDMRFlags)
	for _, line := range strings.Split(text, "\n") {
		result := fdmrRouteRegex.FindStringSubmatch(strings.TrimRight(line, "\r"))
		if result == nil {
			continue
		}
		// Skips (*, G/32) and other non-address sources
		source, err := netip.ParseAddr(result[1])
		if err != nil {
			continue
		}
		group, err := netip.ParseAddr(result[2])
		if err != nil {
			continue
		}
		flags[FlowKey{Source: source.String(), Group: group.String()}] = result[3]
	}
	return flags
}
