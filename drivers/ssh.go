package drivers

import (
	"bytes"
	"context"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/ssh"

	"dev.hon.one/mcastmon/common"
	"dev.hon.one/mcastmon/mcast"
)

const sshDefaultPort = 22

// Marks the end of an NX-OS "| xml" document.
var nxosXMLTrailer = []byte("]]>]]>")

// SSHDevice - Device reached through the CLI over SSH, one connection per Exec.
// Structured output is requested by piping commands to "json" or "xml".
type SSHDevice struct {
	device     common.Device
	credential common.Credential
	timeout    time.Duration
}

// NewSSHDevice - Create an SSH connection. Nothing is dialed until Exec.
func NewSSHDevice(device common.Device, credential common.Credential, options Options) *SSHDevice {
	return &SSHDevice{
		device:     device,
		credential: credential,
		timeout:    options.Timeout,
	}
}

// Name - Device name.
func (device *SSHDevice) Name() string {
	return device.device.DisplayName()
}

// Exec - Open a connection and run each command in its own session.
func (device *SSHDevice) Exec(ctx context.Context, format mcast.OutputFormat, commands ...string) ([]mcast.CommandResult, error) {
	client, err := device.openClient(ctx)
	if err != nil {
		return nil, err
	}
	defer client.Close()
	// Closing the client aborts any running session
	stop := context.AfterFunc(ctx, func() {
		client.Close()
	})
	defer stop()

	results := make([]mcast.CommandResult, 0, len(commands))
	for _, command := range commands {
		output, err := runSSHCommand(client, sshCommandLine(command, format))
		if err != nil {
			log.WithError(err).WithFields(log.Fields{
				"device":  device.Name(),
				"command": command,
			}).Trace("SSH command failed")
			results = append(results, mcast.CommandResult{Command: command, OK: false, Error: err.Error()})
			continue
		}
		results = append(results, mcast.CommandResult{Command: command, OK: true, Output: cleanSSHOutput(output, format)})
	}
	if ctx.Err() != nil {
		return nil, errors.Wrapf(ctx.Err(), "SSH session to %v aborted", device.Name())
	}
	return results, nil
}

func (device *SSHDevice) openClient(ctx context.Context) (*ssh.Client, error) {
	authMethods := make([]ssh.AuthMethod, 0)
	if device.credential.Password != "" {
		authMethods = append(authMethods, ssh.Password(device.credential.Password))
	}
	if device.credential.PrivateKeyPath != "" {
		privateKey, err := os.ReadFile(device.credential.PrivateKeyPath)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read SSH private key %v", device.credential.PrivateKeyPath)
		}
		signer, err := ssh.ParsePrivateKey(privateKey)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to parse SSH private key %v", device.credential.PrivateKeyPath)
		}
		authMethods = append(authMethods, ssh.PublicKeys(signer))
	}
	sshConfig := &ssh.ClientConfig{
		User:            device.credential.Username,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Auth:            authMethods,
		Timeout:         device.timeout,
	}

	port := uint(sshDefaultPort)
	if device.device.Port > 0 {
		port = device.device.Port
	}
	fullAddress := net.JoinHostPort(device.device.Address, strconv.FormatUint(uint64(port), 10))

	dialer := net.Dialer{Timeout: device.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", fullAddress)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to connect to %v", fullAddress)
	}
	clientConn, channels, requests, err := ssh.NewClientConn(conn, fullAddress, sshConfig)
	if err != nil {
		conn.Close()
		return nil, errors.Wrapf(err, "SSH handshake with %v failed", fullAddress)
	}
	return ssh.NewClient(clientConn, channels, requests), nil
}

func runSSHCommand(client *ssh.Client, command string) ([]byte, error) {
	session, err := client.NewSession()
	if err != nil {
		return nil, errors.Wrap(err, "failed to start session")
	}
	defer session.Close()
	output, err := session.Output(command)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to run SSH command: %v", command)
	}
	return output, nil
}

func sshCommandLine(command string, format mcast.OutputFormat) string {
	switch format {
	case mcast.FormatJSON:
		return command + " | json"
	case mcast.FormatXML:
		return command + " | xml"
	}
	return command
}

func cleanSSHOutput(output []byte, format mcast.OutputFormat) []byte {
	if format == mcast.FormatText {
		return bytes.ReplaceAll(output, []byte("\r"), nil)
	}
	output = bytes.TrimSpace(output)
	if format == mcast.FormatXML {
		output = bytes.TrimSpace(bytes.TrimSuffix(output, nxosXMLTrailer))
	}
	return output
}
