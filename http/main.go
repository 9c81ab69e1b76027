package http

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"dev.hon.one/mcastmon/common"
	"dev.hon.one/mcastmon/mcast"
	"dev.hon.one/mcastmon/polling"
	"dev.hon.one/mcastmon/util"
)

const shutdownTimeout = 5 * time.Second

// Labels of the flow status gauge. EOS flows leave oif_count empty.
var statusLabelNames = []string{
	"device",
	"platform",
	mcast.TagSource,
	mcast.TagGroup,
	mcast.TagFlags,
	mcast.TagRPFInterface,
	mcast.TagOIFList,
	mcast.TagOIFCount,
}

var pollLabelNames = []string{"device", "platform"}

// StartServer - Start HTTP server in the background.
func StartServer(waitGroup *sync.WaitGroup, shutdown *util.ShutdownChannelDistributor, store *polling.LatestStore) {
	shutdownChannel := make(chan bool, 1)
	if !shutdown.AddListener(shutdownChannel) {
		return
	}
	waitGroup.Add(1)

	// Configure
	server := &http.Server{
		Addr:              common.GlobalConfig.HTTPEndpoint,
		Handler:           newServeMux(store),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Run
	stopped := make(chan struct{})
	go func() {
		defer waitGroup.Done()
		defer close(stopped)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("HTTP server failed")
		}
		log.Info("HTTP server stopped")
	}()

	// Shutdown
	go func() {
		select {
		case <-shutdownChannel:
			shutdownContext, shutdownContextCancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer shutdownContextCancel()
			server.Shutdown(shutdownContext)
		case <-stopped:
		}
	}()

	log.Infof("HTTP server started: %v", common.GlobalConfig.HTTPEndpoint)
}

func newServeMux(store *polling.LatestStore) *http.ServeMux {
	mainServeMux := http.NewServeMux()
	mainServeMux.HandleFunc("/", handleOtherRequest)
	mainServeMux.HandleFunc("/metrics", func(response http.ResponseWriter, request *http.Request) {
		handleMetricsRequest(response, request, store)
	})
	return mainServeMux
}

func handleOtherRequest(response http.ResponseWriter, request *http.Request) {
	if request.URL.Path == "/" {
		fmt.Fprintf(response, "%s version %s by %s.\n", common.AppName, common.AppVersion, common.AppAuthor)
		fmt.Fprintf(response, "\nPaths:\n")
		fmt.Fprintf(response, "- Metrics: /metrics\n")
	} else {
		http.Error(response, "404 - Page not found.\n", http.StatusNotFound)
	}
}

func handleMetricsRequest(response http.ResponseWriter, request *http.Request, store *polling.LatestStore) {
	log.WithFields(log.Fields{
		"endpoint": "metrics",
		"client":   request.RemoteAddr,
		"url":      request.URL,
	}).Trace("Request")

	// Build registry with data
	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector())
	util.NewExporterMetric(registry, common.PrometheusNamespace, common.AppVersion)
	buildPollMetrics(registry, store.All())

	// Delegate final handling to Prometheus
	promhttp.HandlerFor(registry, promhttp.HandlerOpts{}).ServeHTTP(response, request)
}

func buildPollMetrics(registry *prometheus.Registry, statuses []polling.DeviceStatus) {
	statusMetric := util.NewGaugeVec(registry, common.PrometheusNamespace, "", mcast.MetricName,
		"Multicast S,G flow status (0 active, 1 inactive, 2 unavailable).", nil, statusLabelNames)
	successMetric := util.NewGaugeVec(registry, common.PrometheusNamespace, "poll", "success",
		"If the last poll of the device succeeded.", nil, pollLabelNames)
	durationMetric := util.NewGaugeVec(registry, common.PrometheusNamespace, "poll", "duration_seconds",
		"Duration of the last poll of the device.", nil, pollLabelNames)

	for _, status := range statuses {
		pollLabels := prometheus.Labels{
			"device":   status.Entry.Device,
			"platform": status.Entry.Platform,
		}
		success := 0.0
		if status.Entry.Success {
			success = 1
		}
		successMetric.With(pollLabels).Set(success)
		durationMetric.With(pollLabels).Set(status.Entry.Duration.Seconds())

		for _, metric := range status.Metrics {
			labels := make(prometheus.Labels, len(statusLabelNames))
			for _, name := range statusLabelNames {
				labels[name] = metric.Tags[name]
			}
			statusMetric.With(util.MergeLabels(labels, pollLabels)).Set(float64(metric.Value))
		}
	}
}
