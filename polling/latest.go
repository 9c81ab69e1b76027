package polling

import (
	"sort"

	cmap "github.com/orcaman/concurrent-map/v2"

	"dev.hon.one/mcastmon/common"
	"dev.hon.one/mcastmon/mcast"
)

// DeviceStatus - Latest poll outcome of a device. Metrics is empty when the poll failed.
type DeviceStatus struct {
	Entry   common.PollEntry
	Metrics []mcast.StatusMetric
}

// LatestStore - Latest status per device, safe for concurrent pollers and readers.
type LatestStore struct {
	statuses cmap.ConcurrentMap[string, DeviceStatus]
}

// NewLatestStore - Create an empty store.
func NewLatestStore() *LatestStore {
	return &LatestStore{statuses: cmap.New[DeviceStatus]()}
}

// Update - Replace the status of the entry's device.
func (store *LatestStore) Update(status DeviceStatus) {
	store.statuses.Set(status.Entry.Device, status)
}

// Get - Latest status of a device.
func (store *LatestStore) Get(device string) (DeviceStatus, bool) {
	return store.statuses.Get(device)
}

// Remove - Forget a device.
func (store *LatestStore) Remove(device string) {
	store.statuses.Remove(device)
}

// All - Latest status of all devices, sorted by device name.
func (store *LatestStore) All() []DeviceStatus {
	items := store.statuses.Items()
	statuses := make([]DeviceStatus, 0, len(items))
	for _, status := range items {
		statuses = append(statuses, status)
	}
	sort.Slice(statuses, func(i, j int) bool {
		return statuses[i].Entry.Device < statuses[j].Entry.Device
	})
	return statuses
}
