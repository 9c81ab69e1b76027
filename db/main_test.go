package db

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dev.hon.one/mcastmon/common"
	"dev.hon.one/mcastmon/mcast"
	"dev.hon.one/mcastmon/util"
)

var testEntry = common.PollEntry{
	Time:      time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC),
	Device:    "router1",
	Platform:  mcast.PlatformNXOS,
	Duration:  1500 * time.Millisecond,
	Success:   true,
	FlowCount: 1,
}

var testMetric = mcast.StatusMetric{
	Name:  mcast.MetricName,
	Value: mcast.StatusUnavailable,
	Tags: map[string]string{
		mcast.TagSource:       "10.0.0.1",
		mcast.TagGroup:        "224.1.1.1",
		mcast.TagFlags:        "",
		mcast.TagRPFInterface: "Ethernet1/1",
		mcast.TagOIFList:      "Vlan100",
		mcast.TagOIFCount:     "1",
	},
	Timestamp: testEntry.Time,
}

func TestNewPollPoint(t *testing.T) {
	point := newPollPoint(testEntry)
	assert.Equal(t, MeasurementPoll, point.Name())
	assert.Equal(t, testEntry.Time, point.Time())

	tags := make(map[string]string)
	for _, tag := range point.TagList() {
		tags[tag.Key] = tag.Value
	}
	assert.Equal(t, map[string]string{TagDevice: "router1", TagPlatform: mcast.PlatformNXOS}, tags)

	fields := make(map[string]interface{})
	for _, field := range point.FieldList() {
		fields[field.Key] = field.Value
	}
	assert.Equal(t, 1.5, fields["duration_seconds"])
	assert.Equal(t, true, fields["success"])
	assert.Equal(t, int64(1), fields["flow_count"])
}

func TestNewStatusPoint(t *testing.T) {
	point := newStatusPoint(testEntry, testMetric)
	assert.Equal(t, MeasurementStatus, point.Name())

	tags := make(map[string]string)
	for _, tag := range point.TagList() {
		tags[tag.Key] = tag.Value
	}
	assert.Equal(t, "router1", tags[TagDevice])
	assert.Equal(t, "10.0.0.1", tags[mcast.TagSource])
	assert.Equal(t, "224.1.1.1", tags[mcast.TagGroup])
	assert.Equal(t, "1", tags[mcast.TagOIFCount])
	assert.NotContains(t, tags, mcast.TagFlags)

	require.Len(t, point.FieldList(), 1)
	assert.Equal(t, "value", point.FieldList()[0].Key)
	assert.Equal(t, int64(2), point.FieldList()[0].Value)
}

func TestStorePollResultWithoutClient(t *testing.T) {
	setWriteAPI(nil)
	assert.NotPanics(t, func() {
		StorePollResult(testEntry, []mcast.StatusMetric{testMetric})
	})
}

func TestStartClientDisabled(t *testing.T) {
	oldConfig := common.GlobalConfig
	defer func() { common.GlobalConfig = oldConfig }()
	common.GlobalConfig.InfluxDBURL = ""

	shutdown := &util.ShutdownChannelDistributor{}
	var waitGroup sync.WaitGroup
	StartClient(&waitGroup, shutdown)
	waitGroup.Wait()
	assert.Nil(t, getWriteAPI())
}

func TestStartClientWrites(t *testing.T) {
	var lock sync.Mutex
	var written strings.Builder
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"name": "influxdb", "message": "ready for queries and writes", "status": "pass", "checks": [], "version": "2.0.0", "commit": "none"}`))
		case "/api/v2/write":
			assert.Equal(t, "mcastmon", r.URL.Query().Get("bucket"))
			assert.Equal(t, "network", r.URL.Query().Get("org"))
			body, err := io.ReadAll(r.Body)
			require.NoError(t, err)
			lock.Lock()
			written.Write(body)
			lock.Unlock()
			w.WriteHeader(http.StatusNoContent)
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	oldConfig := common.GlobalConfig
	defer func() { common.GlobalConfig = oldConfig }()
	common.GlobalConfig.InfluxDBURL = server.URL
	common.GlobalConfig.InfluxDBOrg = "network"
	common.GlobalConfig.InfluxDBBucket = "mcastmon"

	shutdown := &util.ShutdownChannelDistributor{}
	var waitGroup sync.WaitGroup
	StartClient(&waitGroup, shutdown)
	require.Eventually(t, func() bool {
		return getWriteAPI() != nil
	}, 5*time.Second, 10*time.Millisecond)

	StorePollResult(testEntry, []mcast.StatusMetric{testMetric})
	shutdown.Shutdown()
	waitGroup.Wait()

	lock.Lock()
	defer lock.Unlock()
	assert.Contains(t, written.String(), "poll,device=router1,platform=nxos")
	assert.Contains(t, written.String(), "mcast_sg_status,")
	assert.Contains(t, written.String(), "value=2i")
}
