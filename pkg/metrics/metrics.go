package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Counters for the two-phase message lifecycle. Replays count finalize
// attempts that hit an unknown or already consumed token.
var (
	SubmissionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "paidwall",
		Name:      "submissions_total",
		Help:      "Pending messages created.",
	})

	SubmissionsRejected = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "paidwall",
		Name:      "submissions_rejected_total",
		Help:      "Submissions rejected by validation.",
	})

	MessagesCommitted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "paidwall",
		Name:      "messages_committed_total",
		Help:      "Pending messages promoted to the wall.",
	})

	FinalizeReplays = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "paidwall",
		Name:      "finalize_replays_total",
		Help:      "Finalize calls on unknown or consumed tokens.",
	})

	MessagesRemoved = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "paidwall",
		Name:      "messages_removed_total",
		Help:      "Messages removed by an administrator.",
	})

	PendingExpired = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "paidwall",
		Name:      "pending_expired_total",
		Help:      "Pending messages deleted by the retention sweep.",
	})

	SettlementsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "paidwall",
		Name:      "settlements_failed_total",
		Help:      "Settle calls rejected or failed at the facilitator.",
	})
)
