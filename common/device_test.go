package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testCredentials = map[string]Credential{
	"noc": {Username: "monitor", Password: "secret"},
}

func TestValidateDevices(t *testing.T) {
	devices := []Device{
		{Address: "10.0.0.1", Platform: "eos", Transport: TransportEAPI, CredentialID: "noc"},
		{Address: "nxos-1.example.net", Port: 8443, Platform: "nxos", Transport: TransportNXAPI, Scheme: "https", CredentialID: "noc"},
		{Address: "10.0.0.3", Platform: "nxos", Transport: TransportSSH, CredentialID: "noc"},
	}
	assert.NoError(t, ValidateDevices(devices, testCredentials))
}

func TestValidateDevicesInvalid(t *testing.T) {
	testCases := map[string][]Device{
		"missing address":    {{Platform: "eos", Transport: TransportEAPI, CredentialID: "noc"}},
		"unknown platform":   {{Address: "10.0.0.1", Platform: "junos", Transport: TransportSSH, CredentialID: "noc"}},
		"unknown transport":  {{Address: "10.0.0.1", Platform: "eos", Transport: "telnet", CredentialID: "noc"}},
		"eapi on nxos":       {{Address: "10.0.0.1", Platform: "nxos", Transport: TransportEAPI, CredentialID: "noc"}},
		"nxapi on eos":       {{Address: "10.0.0.1", Platform: "eos", Transport: TransportNXAPI, CredentialID: "noc"}},
		"unknown credential": {{Address: "10.0.0.1", Platform: "eos", Transport: TransportEAPI, CredentialID: "other"}},
		"bad scheme":         {{Address: "10.0.0.1", Platform: "eos", Transport: TransportEAPI, Scheme: "ftp", CredentialID: "noc"}},
		"duplicate address": {
			{Address: "10.0.0.1", Platform: "eos", Transport: TransportEAPI, CredentialID: "noc"},
			{Address: "10.0.0.1", Platform: "eos", Transport: TransportSSH, CredentialID: "noc"},
		},
	}
	for name, devices := range testCases {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, ValidateDevices(devices, testCredentials))
		})
	}
}

func TestValidateCredentials(t *testing.T) {
	assert.NoError(t, ValidateCredentials(testCredentials))
	assert.Error(t, ValidateCredentials(map[string]Credential{"noc": {Password: "secret"}}))
	assert.Error(t, ValidateCredentials(map[string]Credential{"": {Username: "monitor"}}))
}

func TestLoadDevices(t *testing.T) {
	oldConfig := GlobalConfig
	defer func() {
		GlobalConfig = oldConfig
		GlobalCredentials = nil
		GlobalDevices = nil
	}()

	GlobalConfig.CredentialsPath = writeFile(t, "credentials.json", `{"noc": {"username": "monitor", "password": "secret"}}`)
	GlobalConfig.DevicesPath = writeFile(t, "devices.json", `[
		{"address": "10.0.0.1", "name": "spine-1", "platform": "eos", "transport": "eapi", "credential_id": "noc"}
	]`)

	require.True(t, LoadCredentials())
	require.True(t, LoadDevices())
	require.Len(t, GlobalDevices, 1)
	assert.Equal(t, "spine-1", GlobalDevices[0].DisplayName())
	assert.Equal(t, "monitor", GlobalCredentials["noc"].Username)
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "10.0.0.1", Device{Address: "10.0.0.1"}.DisplayName())
	assert.Equal(t, "leaf-1", Device{Address: "10.0.0.1", Name: "leaf-1"}.DisplayName())
}
