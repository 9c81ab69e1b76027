package db

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	log "github.com/sirupsen/logrus"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	influxdb2api "github.com/influxdata/influxdb-client-go/v2/api"
	influxdb2write "github.com/influxdata/influxdb-client-go/v2/api/write"

	"dev.hon.one/mcastmon/common"
	"dev.hon.one/mcastmon/mcast"
	"dev.hon.one/mcastmon/util"
)

// Measurement names.
const (
	MeasurementStatus = mcast.MetricName
	MeasurementPoll   = "poll"
)

// Tags added to every point.
const (
	TagDevice   = "device"
	TagPlatform = "platform"
)

const dbUpMaxInterval = 30 * time.Second

var clientLock sync.RWMutex
var clientWriteAPI influxdb2api.WriteAPI

// StartClient - Start DB client in the background. Does nothing if no InfluxDB URL is configured.
func StartClient(waitGroup *sync.WaitGroup, shutdown *util.ShutdownChannelDistributor) {
	if common.GlobalConfig.InfluxDBURL == "" {
		log.Info("No InfluxDB URL configured, not storing to database")
		return
	}

	// Setup shutdown signal and waitgroup
	shutdownChannel := make(chan bool, 1)
	if !shutdown.AddListener(shutdownChannel) {
		return
	}
	waitGroup.Add(1)

	client := influxdb2.NewClient(common.GlobalConfig.InfluxDBURL, common.GlobalConfig.InfluxDBToken)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-shutdownChannel
		cancel()
	}()

	go func() {
		defer waitGroup.Done()
		defer log.Info("DB client stopped")
		defer client.Close()

		// Wait for DB connection to come up or for shutdown signal
		if !waitForDBUp(ctx, client) {
			return
		}

		// Setup async write API and error logging
		asyncWriteAPI := client.WriteAPI(common.GlobalConfig.InfluxDBOrg, common.GlobalConfig.InfluxDBBucket)
		go func() {
			for err := range asyncWriteAPI.Errors() {
				log.WithError(err).Error("Failed to write to database")
			}
		}()
		setWriteAPI(asyncWriteAPI)
		log.Info("DB client started: ", common.GlobalConfig.InfluxDBURL)

		<-ctx.Done()
		setWriteAPI(nil)
		asyncWriteAPI.Flush()
	}()
}

func setWriteAPI(writeAPI influxdb2api.WriteAPI) {
	clientLock.Lock()
	defer clientLock.Unlock()
	clientWriteAPI = writeAPI
}

func getWriteAPI() influxdb2api.WriteAPI {
	clientLock.RLock()
	defer clientLock.RUnlock()
	return clientWriteAPI
}

func waitForDBUp(ctx context.Context, client influxdb2.Client) bool {
	policy := backoff.NewExponentialBackOff()
	policy.MaxInterval = dbUpMaxInterval
	policy.MaxElapsedTime = 0
	checkHealth := func() error {
		_, err := client.Health(ctx)
		return err
	}
	notify := func(err error, wait time.Duration) {
		log.WithError(err).WithField("retry_in", wait).Info("Waiting for database")
	}
	return backoff.RetryNotify(checkHealth, backoff.WithContext(policy, ctx), notify) == nil
}

// StorePollResult - Attempt to store a poll entry and its status metrics in the DB.
// Usable as a polling sink.
func StorePollResult(entry common.PollEntry, metrics []mcast.StatusMetric) {
	log.WithFields(log.Fields{
		"device":   entry.Device,
		"time":     entry.Time,
		"duration": entry.Duration,
		"success":  entry.Success,
		"flows":    len(metrics),
	}).Trace("Poll result")

	writeAPI := getWriteAPI()
	if writeAPI == nil {
		return
	}

	writeAPI.WritePoint(newPollPoint(entry))
	for _, metric := range metrics {
		writeAPI.WritePoint(newStatusPoint(entry, metric))
	}
}

func newPollPoint(entry common.PollEntry) *influxdb2write.Point {
	return influxdb2.NewPointWithMeasurement(MeasurementPoll).
		AddTag(TagDevice, entry.Device).
		AddTag(TagPlatform, entry.Platform).
		AddField("duration_seconds", entry.Duration.Seconds()).
		AddField("success", entry.Success).
		AddField("flow_count", int64(entry.FlowCount)).
		SetTime(entry.Time)
}

func newStatusPoint(entry common.PollEntry, metric mcast.StatusMetric) *influxdb2write.Point {
	point := influxdb2.NewPointWithMeasurement(MeasurementStatus).
		AddTag(TagDevice, entry.Device).
		AddTag(TagPlatform, entry.Platform).
		AddField("value", int64(metric.Value)).
		SetTime(metric.Timestamp)
	for key, value := range metric.Tags {
		// Line protocol cannot carry empty tag values
		if value != "" {
			point.AddTag(key, value)
		}
	}
	return point
}
