// Package metrics defines and registers all custom Prometheus metrics for the
// adoption portal. It is the single source of truth for metric names,
// labels, and help strings.
//
// Metrics are registered with the default Prometheus registry on package
// initialisation through promauto.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "adoption"

// ── Authorization state metrics ──────────────────────────────────────────────

// AuthStateTransitionsTotal counts state machine transitions.
// Label:
//   - phase: the phase entered ("anonymous", "authenticated_pending", "authenticated_resolved")
var AuthStateTransitionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "authstate_transitions_total",
		Help:      "Total number of authorization state transitions, by phase entered.",
	},
	[]string{"phase"},
)

// RoleLookupsTotal counts has_role lookups issued by the state machine.
// Label:
//   - result: "admin", "user", "error" or "stale" (result discarded)
var RoleLookupsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "role_lookups_total",
		Help:      "Total number of role lookups, labelled by result.",
	},
	[]string{"result"},
)

// RoleLookupDuration measures how long a has_role lookup takes.
var RoleLookupDuration = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "role_lookup_duration_seconds",
		Help:      "Duration of has_role lookups issued by the authorization state machine.",
		Buckets:   prometheus.DefBuckets,
	},
)

// ── Credential store metrics ─────────────────────────────────────────────────

// SignInsTotal counts password sign-in attempts.
// Label:
//   - result: "success" or "failure"
var SignInsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sign_ins_total",
		Help:      "Total number of password sign-in attempts, by result.",
	},
	[]string{"result"},
)

// ── Bootstrap metrics ────────────────────────────────────────────────────────

// BootstrapRequestsTotal counts bootstrap-admin requests.
// Label:
//   - result: "inserted", "already_present", "bad_request", "forbidden", "user_not_found", "failed"
var BootstrapRequestsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "bootstrap_requests_total",
		Help:      "Total number of bootstrap admin requests, by result.",
	},
	[]string{"result"},
)

// ── Audit metrics ────────────────────────────────────────────────────────────

// AuditQueueDepth tracks the number of audit events waiting in each worker channel.
// Label:
//   - worker_id: numeric worker index (e.g. "0", "1", …)
var AuditQueueDepth = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "audit_queue_depth",
		Help:      "Current number of audit events pending in each dispatcher worker channel.",
	},
	[]string{"worker_id"},
)

// AuditDroppedTotal counts audit events dropped because a worker channel was full.
var AuditDroppedTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "audit_dropped_total",
		Help:      "Total number of audit events dropped because the dispatcher was saturated.",
	},
)

// ── Portal metrics ───────────────────────────────────────────────────────────

// PortalVisitors tracks the number of live visitor sessions in the portal registry.
var PortalVisitors = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "portal_visitors",
		Help:      "Current number of portal visitors holding an authorization state machine.",
	},
)
