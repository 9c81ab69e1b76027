package drivers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/antchfx/jsonquery"
	"github.com/antchfx/xmlquery"
	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"dev.hon.one/mcastmon/common"
	"dev.hon.one/mcastmon/mcast"
)

const nxapiPath = "/ins"
const nxapiSuccessCode = "200"

type nxapiRequest struct {
	InsAPI nxapiInsAPI `json:"ins_api"`
}

type nxapiInsAPI struct {
	Version      string `json:"version"`
	Type         string `json:"type"`
	Chunk        string `json:"chunk"`
	SID          string `json:"sid"`
	Input        string `json:"input"`
	OutputFormat string `json:"output_format"`
}

// NXAPIDevice - Cisco NX-OS device reached through NX-API (ins_api).
type NXAPIDevice struct {
	name    string
	url     string
	version string
	client  *resty.Client
}

// NewNXAPIDevice - Create an NX-API connection. Nothing is sent until Exec.
func NewNXAPIDevice(device common.Device, credential common.Credential, options Options) *NXAPIDevice {
	version := options.NXAPIVersion
	if version == "" {
		version = "1.0"
	}
	return &NXAPIDevice{
		name:    device.DisplayName(),
		url:     baseURL(device) + nxapiPath,
		version: version,
		client:  newHTTPClient(device, credential, options),
	}
}

// Name - Device name.
func (device *NXAPIDevice) Name() string {
	return device.name
}

// Exec - Run the commands one request at a time.
func (device *NXAPIDevice) Exec(ctx context.Context, format mcast.OutputFormat, commands ...string) ([]mcast.CommandResult, error) {
	results := make([]mcast.CommandResult, 0, len(commands))
	for _, command := range commands {
		result, err := device.execSingle(ctx, format, command)
		if err != nil {
			return nil, err
		}
		results = append(results, result)
	}
	return results, nil
}

func (device *NXAPIDevice) execSingle(ctx context.Context, format mcast.OutputFormat, command string) (mcast.CommandResult, error) {
	request := nxapiRequest{InsAPI: nxapiInsAPI{
		Version: device.version,
		Type:    "cli_show",
		Chunk:   "0",
		SID:     "1",
		Input:   command,
	}}
	switch format {
	case mcast.FormatXML:
		request.InsAPI.OutputFormat = "xml"
	case mcast.FormatJSON:
		request.InsAPI.OutputFormat = "json"
	case mcast.FormatText:
		// Text output is wrapped in a JSON envelope
		request.InsAPI.Type = "cli_show_ascii"
		request.InsAPI.OutputFormat = "json"
	}

	httpResponse, err := device.client.R().
		SetContext(ctx).
		SetBody(request).
		Post(device.url)
	if err != nil {
		return mcast.CommandResult{}, errors.Wrapf(err, "NX-API request to %v failed", device.name)
	}
	log.WithFields(log.Fields{
		"device":  device.name,
		"command": command,
		"status":  httpResponse.StatusCode(),
		"time":    httpResponse.Time(),
	}).Trace("NX-API response")

	var code, message string
	var output []byte
	if request.InsAPI.OutputFormat == "xml" {
		code, message, output, err = parseNXAPIXML(httpResponse.Body())
	} else {
		code, message, output, err = parseNXAPIJSON(httpResponse.Body(), format)
	}
	if err != nil {
		reason := err.Error()
		if httpResponse.IsError() {
			reason = fmt.Sprintf("HTTP %v", httpResponse.Status())
		}
		return mcast.CommandResult{Command: command, OK: false, Error: reason}, nil
	}
	if code != nxapiSuccessCode {
		return mcast.CommandResult{Command: command, OK: false, Error: fmt.Sprintf("NX-API code %v: %v", code, message)}, nil
	}
	return mcast.CommandResult{Command: command, OK: true, Output: output}, nil
}

// Returns the output code, message and the <body> element (including the tag itself).
func parseNXAPIXML(data []byte) (string, string, []byte, error) {
	doc, err := xmlquery.Parse(bytes.NewReader(data))
	if err != nil {
		return "", "", nil, errors.Wrap(err, "malformed NX-API XML response")
	}
	output := xmlquery.FindOne(doc, "//outputs/output")
	if output == nil {
		return "", "", nil, errors.New("NX-API XML response without output")
	}
	code := xmlElementText(output, "code")
	message := xmlElementText(output, "msg")
	body := output.SelectElement("body")
	if body == nil {
		return code, message, []byte("<body/>"), nil
	}
	return code, message, []byte(body.OutputXML(true)), nil
}

// Returns the output code, message and body, the body as text or re-encoded JSON.
func parseNXAPIJSON(data []byte, format mcast.OutputFormat) (string, string, []byte, error) {
	doc, err := jsonquery.Parse(bytes.NewReader(data))
	if err != nil {
		return "", "", nil, errors.Wrap(err, "malformed NX-API JSON response")
	}
	output := jsonquery.FindOne(doc, "ins_api/outputs/output")
	if output == nil {
		return "", "", nil, errors.New("NX-API JSON response without output")
	}
	code := jsonElementText(output, "code")
	message := jsonElementText(output, "msg")
	body := output.SelectElement("body")
	if body == nil {
		return code, message, nil, nil
	}
	if format == mcast.FormatText {
		return code, message, []byte(body.InnerText()), nil
	}
	encoded, err := json.Marshal(body.Value())
	if err != nil {
		return "", "", nil, errors.Wrap(err, "failed to encode NX-API JSON body")
	}
	return code, message, encoded, nil
}

func xmlElementText(node *xmlquery.Node, name string) string {
	if child := node.SelectElement(name); child != nil {
		return child.InnerText()
	}
	return ""
}

func jsonElementText(node *jsonquery.Node, name string) string {
	if child := node.SelectElement(name); child != nil {
		return child.InnerText()
	}
	return ""
}
