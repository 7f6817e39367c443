// Package metrics provides Prometheus metrics for the audio policy
// manager.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	connectedDevices = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "audiopolicyd",
		Subsystem: "devices",
		Name:      "connected",
		Help:      "Connected device ports by type",
	}, []string{"device"})

	openOutputs = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "audiopolicyd",
		Subsystem: "streams",
		Name:      "outputs_open",
		Help:      "Currently opened output streams",
	})

	openInputs = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "audiopolicyd",
		Subsystem: "streams",
		Name:      "inputs_open",
		Help:      "Currently opened input streams",
	})

	activeClients = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "audiopolicyd",
		Subsystem: "streams",
		Name:      "clients_active",
		Help:      "Started playback and capture clients by direction",
	}, []string{"direction"})

	patchesActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "audiopolicyd",
		Subsystem: "routing",
		Name:      "patches_active",
		Help:      "Active audio patches",
	})

	routingChanges = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "audiopolicyd",
		Subsystem: "routing",
		Name:      "changes_total",
		Help:      "Total routing recomputations that moved a stream",
	})

	halRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "audiopolicyd",
		Subsystem: "hal",
		Name:      "retries_total",
		Help:      "Transient HAL open failures that were retried",
	}, []string{"op"})

	policyMixes = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "audiopolicyd",
		Subsystem: "policy",
		Name:      "mixes_registered",
		Help:      "Registered dynamic policy mixes by route kind",
	}, []string{"route"})

	volumeIndex = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "audiopolicyd",
		Subsystem: "volume",
		Name:      "index",
		Help:      "Current volume index per group and device type",
	}, []string{"group", "device"})
)

// SetConnectedDevices sets the connected port count for a device type.
func SetConnectedDevices(device string, n int) {
	connectedDevices.WithLabelValues(device).Set(float64(n))
}

// DeleteConnectedDevices removes the gauge for a device type.
func DeleteConnectedDevices(device string) {
	connectedDevices.DeleteLabelValues(device)
}

// SetOpenOutputs sets the opened output stream count.
func SetOpenOutputs(n int) { openOutputs.Set(float64(n)) }

// SetOpenInputs sets the opened input stream count.
func SetOpenInputs(n int) { openInputs.Set(float64(n)) }

// SetActiveClients sets the started client count for one direction
// ("output" or "input").
func SetActiveClients(direction string, n int) {
	activeClients.WithLabelValues(direction).Set(float64(n))
}

// SetActivePatches sets the active patch count.
func SetActivePatches(n int) { patchesActive.Set(float64(n)) }

// IncRoutingChanges counts one applied routing change.
func IncRoutingChanges() { routingChanges.Inc() }

// IncHALRetry counts one retried HAL failure for an operation.
func IncHALRetry(op string) { halRetries.WithLabelValues(op).Inc() }

// SetPolicyMixes sets the registered mix count for a route kind.
func SetPolicyMixes(route string, n int) {
	policyMixes.WithLabelValues(route).Set(float64(n))
}

// SetVolumeIndex sets the volume index gauge for a group on a device
// type.
func SetVolumeIndex(group, device string, index int) {
	volumeIndex.WithLabelValues(group, device).Set(float64(index))
}

// DeleteVolumeIndex removes the gauge for a group/device pair.
func DeleteVolumeIndex(group, device string) {
	volumeIndex.DeleteLabelValues(group, device)
}
