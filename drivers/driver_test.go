package drivers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dev.hon.one/mcastmon/common"
	"dev.hon.one/mcastmon/mcast"
)

var testCredential = common.Credential{Username: "monitor", Password: "secret"}

func deviceForServer(t *testing.T, server *httptest.Server, platform string, transport string) common.Device {
	serverURL, err := url.Parse(server.URL)
	require.NoError(t, err)
	port, err := strconv.ParseUint(serverURL.Port(), 10, 16)
	require.NoError(t, err)
	return common.Device{
		Address:      serverURL.Hostname(),
		Name:         "router1",
		Port:         uint(port),
		Platform:     platform,
		Transport:    transport,
		Scheme:       "http",
		CredentialID: "default",
	}
}

func checkBasicAuth(t *testing.T, r *http.Request) {
	username, password, ok := r.BasicAuth()
	assert.True(t, ok)
	assert.Equal(t, testCredential.Username, username)
	assert.Equal(t, testCredential.Password, password)
}

func TestNew(t *testing.T) {
	options := Options{Timeout: time.Second}
	device := common.Device{Address: "192.0.2.1", Platform: mcast.PlatformEOS, CredentialID: "default"}

	device.Transport = common.TransportEAPI
	eapiDevice, err := New(device, testCredential, options)
	require.NoError(t, err)
	assert.IsType(t, &EAPIDevice{}, eapiDevice)
	assert.Equal(t, "192.0.2.1", eapiDevice.Name())

	device.Transport = common.TransportNXAPI
	nxapiDevice, err := New(device, testCredential, options)
	require.NoError(t, err)
	assert.IsType(t, &NXAPIDevice{}, nxapiDevice)

	device.Transport = common.TransportSSH
	sshDevice, err := New(device, testCredential, options)
	require.NoError(t, err)
	assert.IsType(t, &SSHDevice{}, sshDevice)

	device.Transport = "telnet"
	_, err = New(device, testCredential, options)
	assert.Error(t, err)
}

func TestBaseURL(t *testing.T) {
	assert.Equal(t, "https://192.0.2.1", baseURL(common.Device{Address: "192.0.2.1"}))
	assert.Equal(t, "http://router1:8080", baseURL(common.Device{Address: "router1", Port: 8080, Scheme: "http"}))
	assert.Equal(t, "https://[2001:db8::1]:443", baseURL(common.Device{Address: "2001:db8::1", Port: 443}))
}

func TestSSHCommandLine(t *testing.T) {
	assert.Equal(t, "show ip mroute | json", sshCommandLine("show ip mroute", mcast.FormatJSON))
	assert.Equal(t, "show ip mroute | xml", sshCommandLine("show ip mroute", mcast.FormatXML))
	assert.Equal(t, "show ip mroute", sshCommandLine("show ip mroute", mcast.FormatText))
}

func TestCleanSSHOutput(t *testing.T) {
	xmlOutput := []byte("<?xml version=\"1.0\"?>\n<nf:rpc-reply/>\n]]>]]>\n")
	assert.Equal(t, "<?xml version=\"1.0\"?>\n<nf:rpc-reply/>", string(cleanSSHOutput(xmlOutput, mcast.FormatXML)))
	assert.Equal(t, `{"groups": {}}`, string(cleanSSHOutput([]byte("\n{\"groups\": {}}\n"), mcast.FormatJSON)))
	assert.Equal(t, "line 1\nline 2\n", string(cleanSSHOutput([]byte("line 1\r\nline 2\r\n"), mcast.FormatText)))
}

func TestSSHDeviceUnreachable(t *testing.T) {
	// Grab a free port and close it again
	server := httptest.NewServer(http.NotFoundHandler())
	device := deviceForServer(t, server, mcast.PlatformEOS, common.TransportSSH)
	server.Close()

	sshDevice := NewSSHDevice(device, testCredential, Options{Timeout: time.Second})
	_, err := sshDevice.Exec(context.Background(), mcast.FormatJSON, mcast.EOSMrouteCommand)
	assert.Error(t, err)
}

func TestEAPIDeviceExecJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, eapiPath, r.URL.Path)
		checkBasicAuth(t, r)

		var request eapiRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&request))
		assert.Equal(t, "runCmds", request.Method)
		assert.Equal(t, 1, request.Params.Version)
		assert.Equal(t, "json", request.Params.Format)
		assert.Equal(t, []string{mcast.EOSMrouteCommand}, request.Params.Cmds)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"jsonrpc": "2.0", "id": "mcastmon", "result": [{"groups": {"224.1.1.1": {"groupSources": {
			"10.0.0.1": {"routeFlags": "S", "rpfInterface": "Ethernet1", "oifList": ["Ethernet2"]}}}}}]}`))
	}))
	defer server.Close()

	device := NewEAPIDevice(deviceForServer(t, server, mcast.PlatformEOS, common.TransportEAPI), testCredential, Options{Timeout: time.Second})
	assert.Equal(t, "router1", device.Name())
	results, err := device.Exec(context.Background(), mcast.FormatJSON, mcast.EOSMrouteCommand)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].OK)
	assert.Equal(t, mcast.EOSMrouteCommand, results[0].Command)

	// The raw result feeds straight into the extractor
	flows, err := mcast.ExtractEOSFlows(results[0].Output)
	require.NoError(t, err)
	require.Len(t, flows, 1)
	assert.Equal(t, "10.0.0.1", flows[0].Source)
	assert.Equal(t, []string{"Ethernet2"}, flows[0].OIFList)
}

func TestEAPIDeviceExecText(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var request eapiRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&request))
		assert.Equal(t, "text", request.Params.Format)
		w.Write([]byte(`{"jsonrpc": "2.0", "id": "mcastmon", "result": [{"output": "hostname router1\n"}]}`))
	}))
	defer server.Close()

	device := NewEAPIDevice(deviceForServer(t, server, mcast.PlatformEOS, common.TransportEAPI), testCredential, Options{})
	results, err := device.Exec(context.Background(), mcast.FormatText, "show hostname")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].OK)
	assert.Equal(t, "hostname router1\n", string(results[0].Output))
}

func TestEAPIDeviceCommandError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"jsonrpc": "2.0", "id": "mcastmon", "error": {"code": 1002, "message": "CLI command 1 of 1 'show ip mroute' failed: invalid command"}}`))
	}))
	defer server.Close()

	device := NewEAPIDevice(deviceForServer(t, server, mcast.PlatformEOS, common.TransportEAPI), testCredential, Options{})
	results, err := device.Exec(context.Background(), mcast.FormatJSON, mcast.EOSMrouteCommand)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.False(t, results[0].OK)
	assert.Contains(t, results[0].Error, "1002")
}

func TestEAPIDeviceHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	device := NewEAPIDevice(deviceForServer(t, server, mcast.PlatformEOS, common.TransportEAPI), testCredential, Options{})
	results, err := device.Exec(context.Background(), mcast.FormatJSON, mcast.EOSMrouteCommand)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.False(t, results[0].OK)
	assert.Contains(t, results[0].Error, "401")
}

func TestEAPIDeviceXMLUnsupported(t *testing.T) {
	device := NewEAPIDevice(common.Device{Address: "192.0.2.1"}, testCredential, Options{})
	_, err := device.Exec(context.Background(), mcast.FormatXML, mcast.EOSMrouteCommand)
	assert.Error(t, err)
}

func TestEAPIDeviceUnreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	device := deviceForServer(t, server, mcast.PlatformEOS, common.TransportEAPI)
	server.Close()

	eapiDevice := NewEAPIDevice(device, testCredential, Options{Timeout: time.Second})
	_, err := eapiDevice.Exec(context.Background(), mcast.FormatJSON, mcast.EOSMrouteCommand)
	assert.Error(t, err)
}

const nxapiXMLResponse = `<?xml version="1.0"?>
<ins_api>
  <type>cli_show</type>
  <version>1.0</version>
  <sid>eoc</sid>
  <outputs>
    <output>
      <body>
        <TABLE_vrf>
          <ROW_vrf>
            <vrf-name>default</vrf-name>
            <TABLE_one_route>
              <ROW_one_route>
                <mcast-addrs>(10.0.0.1/32, 224.1.1.1/32)</mcast-addrs>
                <route-iif>Ethernet1/1</route-iif>
                <pending>false</pending>
                <stats-rate-buf>120.500 pps</stats-rate-buf>
                <TABLE_oif>
                  <ROW_oif>
                    <oif-name>Vlan100</oif-name>
                  </ROW_oif>
                </TABLE_oif>
              </ROW_one_route>
            </TABLE_one_route>
          </ROW_vrf>
        </TABLE_vrf>
      </body>
      <input>show ip mroute source-tree detail</input>
      <msg>Success</msg>
      <code>200</code>
    </output>
  </outputs>
</ins_api>`

func TestNXAPIDeviceExecXML(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, nxapiPath, r.URL.Path)
		checkBasicAuth(t, r)

		var request nxapiRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&request))
		assert.Equal(t, "1.0", request.InsAPI.Version)
		assert.Equal(t, "cli_show", request.InsAPI.Type)
		assert.Equal(t, "xml", request.InsAPI.OutputFormat)
		assert.Equal(t, mcast.NXOSMrouteCommand, request.InsAPI.Input)

		w.Header().Set("Content-Type", "text/xml")
		w.Write([]byte(nxapiXMLResponse))
	}))
	defer server.Close()

	device := NewNXAPIDevice(deviceForServer(t, server, mcast.PlatformNXOS, common.TransportNXAPI), testCredential, Options{Timeout: time.Second})
	results, err := device.Exec(context.Background(), mcast.FormatXML, mcast.NXOSMrouteCommand)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.True(t, results[0].OK, results[0].Error)

	flows, err := mcast.ExtractNXOSFlows(results[0].Output)
	require.NoError(t, err)
	require.Len(t, flows, 1)
	assert.Equal(t, mcast.FlowKey{Source: "10.0.0.1", Group: "224.1.1.1"}, flows[0].Key())
	assert.Equal(t, "Ethernet1/1", flows[0].RPFInterface)
	assert.Equal(t, []string{"Vlan100"}, flows[0].OIFList)
}

func TestNXAPIDeviceExecText(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var request nxapiRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&request))
		assert.Equal(t, "2.0", request.InsAPI.Version)
		assert.Equal(t, "cli_show_ascii", request.InsAPI.Type)
		assert.Equal(t, "json", request.InsAPI.OutputFormat)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ins_api": {"type": "cli_show_ascii", "version": "2.0", "sid": "eoc", "outputs": {"output": {
			"input": "show forwarding distribution multicast route", "msg": "Success", "code": "200",
			"body": "  (10.0.0.2/32, 224.1.1.1/32), RPF Interface: Ethernet1/1, flags: O\n"}}}}`))
	}))
	defer server.Close()

	options := Options{Timeout: time.Second, NXAPIVersion: "2.0"}
	device := NewNXAPIDevice(deviceForServer(t, server, mcast.PlatformNXOS, common.TransportNXAPI), testCredential, options)
	results, err := device.Exec(context.Background(), mcast.FormatText, mcast.NXOSFDMRCommand)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.True(t, results[0].OK, results[0].Error)

	flags := mcast.ParseFDMR(string(results[0].Output))
	assert.Equal(t, mcast.FDMRFlags{{Source: "10.0.0.2", Group: "224.1.1.1"}: "O"}, flags)
}

func TestNXAPIDeviceCommandError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/xml")
		w.Write([]byte(`<?xml version="1.0"?>
<ins_api><outputs><output><input>show ip mroute source-tree detail</input>
<msg>Input CLI command error</msg><code>400</code></output></outputs></ins_api>`))
	}))
	defer server.Close()

	device := NewNXAPIDevice(deviceForServer(t, server, mcast.PlatformNXOS, common.TransportNXAPI), testCredential, Options{})
	results, err := device.Exec(context.Background(), mcast.FormatXML, mcast.NXOSMrouteCommand)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.False(t, results[0].OK)
	assert.Contains(t, results[0].Error, "400")
	assert.Contains(t, results[0].Error, "Input CLI command error")
}

func TestNXAPIDeviceHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer server.Close()

	device := NewNXAPIDevice(deviceForServer(t, server, mcast.PlatformNXOS, common.TransportNXAPI), testCredential, Options{})
	results, err := device.Exec(context.Background(), mcast.FormatXML, mcast.NXOSMrouteCommand)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.False(t, results[0].OK)
	assert.Contains(t, results[0].Error, "401")
}
