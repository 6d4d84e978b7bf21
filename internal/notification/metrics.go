package notification

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RemindersProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tablemate_reminders_processed_total",
		Help: "Scheduled reminders materialized into notifications.",
	})

	SchedulerPasses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tablemate_scheduler_passes_total",
		Help: "Scheduler passes by outcome.",
	}, []string{"outcome"})

	PushSends = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tablemate_push_sends_total",
		Help: "Push delivery attempts by outcome.",
	}, []string{"outcome"})

	EmailTasks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tablemate_email_tasks_total",
		Help: "Email worker task handling by outcome.",
	}, []string{"outcome"})
)
