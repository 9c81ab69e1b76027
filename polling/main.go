// Package polling runs the collectors against all configured devices on an interval.
package polling

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"dev.hon.one/mcastmon/common"
	"dev.hon.one/mcastmon/mcast"
	"dev.hon.one/mcastmon/util"
)

// DriverFactory - Creates the connection used to poll a device.
type DriverFactory func(device common.Device, credential common.Credential) (mcast.Device, error)

// Sink - Receives the outcome of every device poll. Metrics is empty when the poll failed.
type Sink func(entry common.PollEntry, metrics []mcast.StatusMetric)

// Poller - Polls a fixed set of devices using the collectors of a registry.
type Poller struct {
	Registry    *mcast.Registry
	Store       *LatestStore
	Devices     []common.Device
	Credentials map[string]common.Credential
	NewDevice   DriverFactory
	Sinks       []Sink
	Timeout     time.Duration
}

// StartPoller - Start polling in the background, immediately and then every interval.
func StartPoller(waitGroup *sync.WaitGroup, shutdown *util.ShutdownChannelDistributor, poller *Poller, interval time.Duration) {
	// Setup shutdown signal and waitgroup
	shutdownChannel := make(chan bool, 1)
	if !shutdown.AddListener(shutdownChannel) {
		return
	}
	waitGroup.Add(1)

	// Abort running polls on shutdown
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-shutdownChannel
		cancel()
	}()

	for _, device := range poller.Devices {
		log.WithFields(log.Fields{
			"device": device.DisplayName(),
		}).Infof("Starting %v S,G flow status collector", device.Platform)
	}

	go func() {
		defer waitGroup.Done()
		defer log.Info("Poller stopped")

		// Poll immediately
		poller.PollOnce(ctx)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				poller.PollOnce(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()

	log.WithFields(log.Fields{
		"interval": interval,
		"devices":  len(poller.Devices),
	}).Info("Poller started")
}

// PollOnce - Poll all devices concurrently and wait for them to finish.
// Entries are returned in device order.
func (poller *Poller) PollOnce(ctx context.Context) []common.PollEntry {
	log.Trace("Polling all devices")
	entries := make([]common.PollEntry, len(poller.Devices))
	var waitGroup sync.WaitGroup
	for i, device := range poller.Devices {
		waitGroup.Add(1)
		go func(i int, device common.Device) {
			defer waitGroup.Done()
			entries[i] = poller.pollSingle(ctx, device)
		}(i, device)
	}
	waitGroup.Wait()
	return entries
}

func (poller *Poller) pollSingle(ctx context.Context, device common.Device) common.PollEntry {
	logger := log.WithFields(log.Fields{
		"device":   device.DisplayName(),
		"platform": device.Platform,
	})
	logger.Trace("Polling device")
	startTime := time.Now()

	metrics, err := poller.collect(ctx, device, startTime)
	if err != nil {
		// Unreachable devices and failed commands warn, malformed output is an error
		if errors.Is(err, mcast.ErrCommandFailed) || errors.Is(err, context.DeadlineExceeded) {
			logger.WithError(err).Warn("Skipping poll cycle for device")
		} else {
			logger.WithError(err).Error("Skipping poll cycle for device")
		}
		metrics = nil
	}

	entry := common.PollEntry{
		Time:      startTime,
		Device:    device.DisplayName(),
		Platform:  device.Platform,
		Duration:  time.Since(startTime),
		Success:   err == nil,
		FlowCount: len(metrics),
	}
	logger.WithFields(log.Fields{
		"duration": entry.Duration,
		"success":  entry.Success,
		"flows":    entry.FlowCount,
	}).Debug("Polled device")

	if poller.Store != nil {
		poller.Store.Update(DeviceStatus{Entry: entry, Metrics: metrics})
	}
	for _, sink := range poller.Sinks {
		sink(entry, metrics)
	}
	return entry
}

func (poller *Poller) collect(ctx context.Context, device common.Device, timestamp time.Time) ([]mcast.StatusMetric, error) {
	collector, err := poller.Registry.Lookup(device.Platform)
	if err != nil {
		return nil, err
	}
	credential, found := poller.Credentials[device.CredentialID]
	if !found {
		return nil, errors.Errorf("credential ID not found: %v", device.CredentialID)
	}
	connection, err := poller.NewDevice(device, credential)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create device connection")
	}

	if poller.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, poller.Timeout)
		defer cancel()
	}
	return collector.Collect(ctx, connection, timestamp)
}
