// Package drivers connects to devices and implements mcast.Device for each supported transport.
package drivers

import (
	"crypto/tls"
	"net"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"

	"dev.hon.one/mcastmon/common"
	"dev.hon.one/mcastmon/mcast"
)

// Options - Settings shared by all device connections.
type Options struct {
	Timeout      time.Duration
	NXAPIVersion string
}

// New - Create the device connection for the device's transport.
func New(device common.Device, credential common.Credential, options Options) (mcast.Device, error) {
	switch device.Transport {
	case common.TransportEAPI:
		return NewEAPIDevice(device, credential, options), nil
	case common.TransportNXAPI:
		return NewNXAPIDevice(device, credential, options), nil
	case common.TransportSSH:
		return NewSSHDevice(device, credential, options), nil
	}
	return nil, errors.Errorf("unsupported transport %q", device.Transport)
}

func failedResults(commands []string, reason string) []mcast.CommandResult {
	results := make([]mcast.CommandResult, 0, len(commands))
	for _, command := range commands {
		results = append(results, mcast.CommandResult{Command: command, OK: false, Error: reason})
	}
	return results
}

func newHTTPClient(device common.Device, credential common.Credential, options Options) *resty.Client {
	client := resty.New().
		SetTimeout(options.Timeout).
		SetBasicAuth(credential.Username, credential.Password).
		SetHeader("Content-Type", "application/json")
	if device.Insecure {
		client.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}
	return client
}

func baseURL(device common.Device) string {
	scheme := device.Scheme
	if scheme == "" {
		scheme = "https"
	}
	host := device.Address
	if device.Port > 0 {
		host = net.JoinHostPort(device.Address, strconv.FormatUint(uint64(device.Port), 10))
	}
	return scheme + "://" + host
}
