// Package metrics provides Prometheus metrics for the Fern service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsCreatedTotal tracks data requests created by type
	RequestsCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "requests",
			Name:      "created_total",
			Help:      "Total number of data requests created by type",
		},
		[]string{"request_type"},
	)

	// RequestsDecidedTotal tracks request decisions by outcome
	RequestsDecidedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "requests",
			Name:      "decided_total",
			Help:      "Total number of request decisions by outcome",
		},
		[]string{"status"},
	)

	// ContractsCreatedTotal tracks contracts created
	ContractsCreatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "contracts",
			Name:      "created_total",
			Help:      "Total number of contracts created",
		},
	)

	// ContractCreationFailuresTotal tracks approvals whose contract could not be created
	ContractCreationFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "contracts",
			Name:      "creation_failures_total",
			Help:      "Total number of contract creation failures after approval",
		},
	)

	// ContractStatusChangesTotal tracks contract status changes
	ContractStatusChangesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "contracts",
			Name:      "status_changes_total",
			Help:      "Total number of contract status changes",
		},
		[]string{"status"},
	)

	// TransfersFinishedTotal tracks transfers reaching a terminal status
	TransfersFinishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "transfers",
			Name:      "finished_total",
			Help:      "Total number of transfers reaching a terminal status",
		},
		[]string{"status"},
	)

	// TransfersCascadeCancelledTotal tracks transfers cancelled by contract termination
	TransfersCascadeCancelledTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "transfers",
			Name:      "cascade_cancelled_total",
			Help:      "Total number of transfers cancelled because their contract terminated",
		},
	)

	// RequestsExpiredTotal tracks requests expired by the sweeper
	RequestsExpiredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "sweeper",
			Name:      "requests_expired_total",
			Help:      "Total number of pending requests expired by the sweeper",
		},
	)

	// SweeperRunsTotal tracks sweeper runs by result
	SweeperRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "sweeper",
			Name:      "runs_total",
			Help:      "Total number of sweeper runs by result",
		},
		[]string{"result"},
	)

	// EventEmitFailuresTotal tracks lifecycle events that could not be published
	EventEmitFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "events",
			Name:      "emit_failures_total",
			Help:      "Total number of lifecycle events that failed to publish",
		},
		[]string{"type"},
	)
)
