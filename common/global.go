package common

// Global non-constant variables go here.

// GlobalConfig - Global singleton.
var GlobalConfig = Config{
	HTTPEndpoint:        ":8080",
	CredentialsPath:     "credentials.json",
	DevicesPath:         "devices.json",
	PollIntervalSeconds: 60.0,
	PollTimeoutSeconds:  30.0,
	LogLevel:            "info",
	InfluxDBBucket:      "mcastmon",
	NXOSFDMR:            true,
	NXAPIVersion:        "1.0",
}

// GlobalCredentials - List of loaded credentials, identified by some ID.
var GlobalCredentials map[string]Credential

// GlobalDevices - List of loaded devices, addresses must be unique.
var GlobalDevices []Device
