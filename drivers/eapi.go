package drivers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"dev.hon.one/mcastmon/common"
	"dev.hon.one/mcastmon/mcast"
)

const eapiPath = "/command-api"

type eapiRequest struct {
	JSONRPC string     `json:"jsonrpc"`
	Method  string     `json:"method"`
	Params  eapiParams `json:"params"`
	ID      string     `json:"id"`
}

type eapiParams struct {
	Version int      `json:"version"`
	Cmds    []string `json:"cmds"`
	Format  string   `json:"format"`
}

type eapiResponse struct {
	Result []json.RawMessage `json:"result"`
	Error  *eapiError        `json:"error"`
}

type eapiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type eapiTextResult struct {
	Output string `json:"output"`
}

// EAPIDevice - Arista EOS device reached through the eAPI JSON-RPC interface.
type EAPIDevice struct {
	name   string
	url    string
	client *resty.Client
}

// NewEAPIDevice - Create an eAPI connection. Nothing is sent until Exec.
func NewEAPIDevice(device common.Device, credential common.Credential, options Options) *EAPIDevice {
	return &EAPIDevice{
		name:   device.DisplayName(),
		url:    baseURL(device) + eapiPath,
		client: newHTTPClient(device, credential, options),
	}
}

// Name - Device name.
func (device *EAPIDevice) Name() string {
	return device.name
}

// Exec - Run all commands in one runCmds call. eAPI has no XML output.
func (device *EAPIDevice) Exec(ctx context.Context, format mcast.OutputFormat, commands ...string) ([]mcast.CommandResult, error) {
	var eapiFormat string
	switch format {
	case mcast.FormatJSON:
		eapiFormat = "json"
	case mcast.FormatText:
		eapiFormat = "text"
	default:
		return nil, errors.Errorf("eAPI does not support %v output", format)
	}

	request := eapiRequest{
		JSONRPC: "2.0",
		Method:  "runCmds",
		Params: eapiParams{
			Version: 1,
			Cmds:    commands,
			Format:  eapiFormat,
		},
		ID: common.AppName,
	}
	var response eapiResponse
	httpResponse, err := device.client.R().
		SetContext(ctx).
		SetBody(request).
		SetResult(&response).
		ForceContentType("application/json").
		Post(device.url)
	if err != nil {
		return nil, errors.Wrapf(err, "eAPI request to %v failed", device.name)
	}
	log.WithFields(log.Fields{
		"device": device.name,
		"status": httpResponse.StatusCode(),
		"time":   httpResponse.Time(),
	}).Trace("eAPI response")

	if response.Error != nil {
		return failedResults(commands, fmt.Sprintf("eAPI error %d: %s", response.Error.Code, response.Error.Message)), nil
	}
	if httpResponse.IsError() {
		return failedResults(commands, fmt.Sprintf("HTTP %v", httpResponse.Status())), nil
	}
	if len(response.Result) != len(commands) {
		return nil, errors.Errorf("eAPI returned %v results for %v commands", len(response.Result), len(commands))
	}

	results := make([]mcast.CommandResult, 0, len(commands))
	for i, command := range commands {
		output := []byte(response.Result[i])
		if format == mcast.FormatText {
			var textResult eapiTextResult
			if err := json.Unmarshal(output, &textResult); err != nil {
				results = append(results, mcast.CommandResult{Command: command, OK: false, Error: err.Error()})
				continue
			}
			output = []byte(textResult.Output)
		}
		results = append(results, mcast.CommandResult{Command: command, OK: true, Output: output})
	}
	return results, nil
}
