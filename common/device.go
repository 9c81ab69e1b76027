package common

import (
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"dev.hon.one/mcastmon/mcast"
	"dev.hon.one/mcastmon/util"
)

// Transports (device API plus protocol).
const (
	TransportEAPI  = "eapi"
	TransportNXAPI = "nxapi"
	TransportSSH   = "ssh"
)

// Credential - Credential for a device.
type Credential struct {
	Username       string `json:"username" validate:"required"`
	Password       string `json:"password"`
	PrivateKeyPath string `json:"private_key_path"`
}

// Device - A device to poll.
type Device struct {
	Address      string `json:"address" validate:"required,hostname_rfc1123|ip"` // Unique
	Name         string `json:"name"`                                           // Optional, defaults to address
	Port         uint   `json:"port" validate:"lte=65535"`                      // Optional, default to normal service port
	Platform     string `json:"platform" validate:"oneof=eos nxos"`
	Transport    string `json:"transport" validate:"oneof=eapi nxapi ssh"`
	Scheme       string `json:"scheme" validate:"omitempty,oneof=http https"` // HTTP APIs only, default https
	Insecure     bool   `json:"insecure"`                                     // Skip TLS verification
	CredentialID string `json:"credential_id" validate:"required"`
}

// DisplayName - Name used in logs and metrics.
func (device Device) DisplayName() string {
	if device.Name != "" {
		return device.Name
	}
	return device.Address
}

// ValidateCredentials - Check that all credentials are complete.
func ValidateCredentials(credentials map[string]Credential) error {
	for credentialID, credential := range credentials {
		if credentialID == "" {
			return errors.New("credential with empty ID")
		}
		if err := validate.Struct(credential); err != nil {
			return errors.Wrapf(err, "invalid credential %v", credentialID)
		}
	}
	return nil
}

// ValidateDevices - Check devices for missing fields, duplicates, unsupported transports and unknown credentials.
func ValidateDevices(devices []Device, credentials map[string]Credential) error {
	deviceAddresses := make(map[string]bool)
	for _, device := range devices {
		if err := validate.Struct(device); err != nil {
			return errors.Wrapf(err, "invalid device %v", device.Address)
		}
		// Check for duplicate address
		if _, found := deviceAddresses[device.Address]; found {
			return errors.Errorf("duplicate device address %v", device.Address)
		}
		deviceAddresses[device.Address] = true
		// Check if the API exists on the platform
		switch device.Transport {
		case TransportEAPI:
			if device.Platform != mcast.PlatformEOS {
				return errors.Errorf("device %v: transport %v requires platform %v", device.Address, device.Transport, mcast.PlatformEOS)
			}
		case TransportNXAPI:
			if device.Platform != mcast.PlatformNXOS {
				return errors.Errorf("device %v: transport %v requires platform %v", device.Address, device.Transport, mcast.PlatformNXOS)
			}
		}
		// Check if credential ID exists
		if _, found := credentials[device.CredentialID]; !found {
			return errors.Errorf("device %v: credential ID not found: %v", device.Address, device.CredentialID)
		}
	}
	return nil
}

// LoadCredentials - Load credentials from file from config.
func LoadCredentials() bool {
	if !util.ParseJSONFile(&GlobalCredentials, GlobalConfig.CredentialsPath) {
		return false
	}

	if err := ValidateCredentials(GlobalCredentials); err != nil {
		log.WithError(err).Error("Invalid credentials")
		return false
	}

	log.WithFields(log.Fields{
		"credentials_path": GlobalConfig.CredentialsPath,
		"credential_count": len(GlobalCredentials),
	}).Info("Loaded credentials")

	return true
}

// LoadDevices - Load devices from file from config.
func LoadDevices() bool {
	if !util.ParseJSONFile(&GlobalDevices, GlobalConfig.DevicesPath) {
		return false
	}

	if err := ValidateDevices(GlobalDevices, GlobalCredentials); err != nil {
		log.WithError(err).Error("Invalid devices")
		return false
	}

	log.WithFields(log.Fields{
		"devices_path": GlobalConfig.DevicesPath,
		"device_count": len(GlobalDevices),
	}).Info("Loaded devices")

	return true
}
