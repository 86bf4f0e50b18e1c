// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "coffeebot"

var (
	SessionsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sessions_started_total",
		Help:      "Group order sessions opened.",
	})
	SessionsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sessions_finished_total",
		Help:      "Group order sessions that reached a terminal state.",
	}, []string{"status"})
	CoffeesAllocated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "coffees_allocated_total",
		Help:      "Units attributed to consumers.",
	}, []string{"source"})
	ActiveViewers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_viewers",
		Help:      "Participants with a live view of the active session.",
	})
	NotifyFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "notify_failures_total",
		Help:      "View renders that failed and dropped the viewer.",
	})
	DebtsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "debts_created_total",
		Help:      "Debts created by completing cards.",
	})
	PaymentsCents = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "payments_cents_total",
		Help:      "Cents recorded as paid, including unapplied remainders.",
	})
)

var RemindersSent = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "reminders_sent_total",
	Help:      "Debt reminder DMs by result.",
}, []string{"result"})
