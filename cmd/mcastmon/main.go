package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	log "github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"

	"dev.hon.one/mcastmon/common"
	"dev.hon.one/mcastmon/db"
	"dev.hon.one/mcastmon/drivers"
	"dev.hon.one/mcastmon/http"
	"dev.hon.one/mcastmon/mcast"
	"dev.hon.one/mcastmon/polling"
	"dev.hon.one/mcastmon/util"
)

func main() {
	log.Infof("Starting %v version %v by %v", common.AppName, common.AppVersion, common.AppAuthor)

	// Parse CLI args (may exit)
	debug := false
	once := false
	configPath := ""
	flag.BoolVar(&debug, "debug", debug, "Show debug messages.")
	flag.BoolVar(&once, "once", once, "Poll all devices once, print the metrics and exit.")
	flag.StringVar(&configPath, "config", configPath, "Config file path.")
	flag.Parse()

	// Load config
	if !common.LoadConfig(configPath) {
		os.Exit(1)
	}
	if err := util.SetupLogging(common.GlobalConfig.LogLevel, common.GlobalConfig.LogFile); err != nil {
		log.WithError(err).Error("Failed to setup logging")
		os.Exit(1)
	}
	if debug {
		log.SetLevel(log.TraceLevel)
		log.Info("Debug mode enabled")
	}

	// Load credentials and devices
	if !common.LoadCredentials() || !common.LoadDevices() {
		os.Exit(1)
	}

	// Every configured platform needs a collector
	registry := mcast.NewDefaultRegistry(mcast.CollectorConfig{FDMR: common.GlobalConfig.NXOSFDMR})
	for _, device := range common.GlobalDevices {
		if _, err := registry.Lookup(device.Platform); err != nil {
			log.WithError(err).WithField("device", device.DisplayName()).Error("No collector for device platform")
			os.Exit(1)
		}
	}

	driverOptions := drivers.Options{
		Timeout:      common.GlobalConfig.PollTimeout(),
		NXAPIVersion: common.GlobalConfig.NXAPIVersion,
	}
	store := polling.NewLatestStore()
	poller := &polling.Poller{
		Registry:    registry,
		Store:       store,
		Devices:     common.GlobalDevices,
		Credentials: common.GlobalCredentials,
		NewDevice: func(device common.Device, credential common.Credential) (mcast.Device, error) {
			return drivers.New(device, credential, driverOptions)
		},
		Sinks:   []polling.Sink{db.StorePollResult},
		Timeout: common.GlobalConfig.PollTimeout(),
	}

	if once {
		if !pollOnce(poller) {
			os.Exit(1)
		}
		return
	}

	// Setup internal shutdown mechanism
	shutdownChannel := make(chan os.Signal, 1)
	signal.Notify(shutdownChannel, syscall.SIGINT, syscall.SIGTERM)
	shutdown := util.NewShutdownChannelDistributor(shutdownChannel)

	// Run internal services in background and wait for all to finish
	var waitGroup sync.WaitGroup
	http.StartServer(&waitGroup, shutdown, store)
	db.StartClient(&waitGroup, shutdown)
	polling.StartPoller(&waitGroup, shutdown, poller, common.GlobalConfig.PollInterval())

	// Wait for internal services to finish
	waitGroup.Wait()
}

// Returns false if any device failed.
func pollOnce(poller *polling.Poller) bool {
	entries := poller.PollOnce(context.Background())
	allSuccess := true
	for _, status := range poller.Store.All() {
		for _, metric := range status.Metrics {
			log.WithFields(log.Fields{
				"device": status.Entry.Device,
				"S":      metric.Tags[mcast.TagSource],
				"G":      metric.Tags[mcast.TagGroup],
				"flags":  metric.Tags[mcast.TagFlags],
				"status": metric.Value.String(),
			}).Info("Flow status")
		}
	}
	for _, entry := range entries {
		if !entry.Success {
			allSuccess = false
		}
	}
	return allSuccess
}
