package common

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// PrometheusNamespace - Prometheus metrics namespace.
const PrometheusNamespace = "mcastmon"

// EnvPrefix - Prefix for environment variables overriding config keys (e.g. MCASTMON_POLL_INTERVAL).
const EnvPrefix = "MCASTMON"

// Config - The config.
type Config struct {
	HTTPEndpoint        string  `mapstructure:"http_endpoint" validate:"required"`
	CredentialsPath     string  `mapstructure:"credentials_path" validate:"required"`
	DevicesPath         string  `mapstructure:"devices_path" validate:"required"`
	PollIntervalSeconds float64 `mapstructure:"poll_interval" validate:"gt=0"`
	PollTimeoutSeconds  float64 `mapstructure:"poll_timeout" validate:"gt=0"`
	LogLevel            string  `mapstructure:"log_level" validate:"oneof=panic fatal error warn warning info debug trace"`
	LogFile             string  `mapstructure:"log_file"`
	InfluxDBURL         string  `mapstructure:"influxdb_url" validate:"omitempty,url"`
	InfluxDBToken       string  `mapstructure:"influxdb_token"`
	InfluxDBOrg         string  `mapstructure:"influxdb_org" validate:"required_with=InfluxDBURL"`
	InfluxDBBucket      string  `mapstructure:"influxdb_bucket" validate:"required_with=InfluxDBURL"`
	NXOSFDMR            bool    `mapstructure:"nxos_fdmr"`
	NXAPIVersion        string  `mapstructure:"nxapi_version" validate:"required"`
}

// PollInterval - Time between poll cycles.
func (config Config) PollInterval() time.Duration {
	return time.Duration(config.PollIntervalSeconds * float64(time.Second))
}

// PollTimeout - Max duration of a single device poll.
func (config Config) PollTimeout() time.Duration {
	return time.Duration(config.PollTimeoutSeconds * float64(time.Second))
}

var validate = validator.New()

func setConfigDefaults(v *viper.Viper) {
	v.SetDefault("http_endpoint", ":8080")
	v.SetDefault("credentials_path", "credentials.json")
	v.SetDefault("devices_path", "devices.json")
	v.SetDefault("poll_interval", 60.0)
	v.SetDefault("poll_timeout", 30.0)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_file", "")
	v.SetDefault("influxdb_url", "")
	v.SetDefault("influxdb_token", "")
	v.SetDefault("influxdb_org", "")
	v.SetDefault("influxdb_bucket", "mcastmon")
	v.SetDefault("nxos_fdmr", true)
	// N9K 7.0 only accepts API version 1.0
	v.SetDefault("nxapi_version", "1.0")
}

// ParseConfig - Read, default and validate the config. An empty path gives the defaults (plus env overrides).
func ParseConfig(path string) (Config, error) {
	v := viper.New()
	setConfigDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, errors.Wrapf(err, "failed to read config file %v", path)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return Config{}, errors.Wrap(err, "failed to decode config")
	}
	if err := validate.Struct(config); err != nil {
		return Config{}, errors.Wrap(err, "invalid config")
	}
	return config, nil
}

// LoadConfig - Load configuration file into the global config.
func LoadConfig(path string) bool {
	log.WithFields(log.Fields{
		"config_path": path,
	}).Info("Loading config")

	config, err := ParseConfig(path)
	if err != nil {
		log.WithError(err).Error("Failed to load config")
		return false
	}
	GlobalConfig = config

	return true
}
