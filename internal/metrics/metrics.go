package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	ChatRequests      prometheus.Counter
	ProviderAttempts  *prometheus.CounterVec
	FallbackExhausted prometheus.Counter
	SyncEnqueued      prometheus.Counter
	SyncProcessed     prometheus.Counter
	SyncFailed        prometheus.Counter
}

var (
	once   sync.Once
	global *Metrics
)

func Global() *Metrics {
	once.Do(func() {
		global = &Metrics{
			ChatRequests: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "secondmind",
				Name:      "chat_requests_total",
				Help:      "Total chat proxy requests received",
			}),
			ProviderAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "secondmind",
				Name:      "provider_attempts_total",
				Help:      "Provider candidate attempts by outcome",
			}, []string{"provider", "outcome"}),
			FallbackExhausted: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "secondmind",
				Name:      "fallback_exhausted_total",
				Help:      "Chat requests for which every candidate failed",
			}),
			SyncEnqueued: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "secondmind",
				Name:      "sync_enqueued_total",
				Help:      "Total sync jobs enqueued to redis stream",
			}),
			SyncProcessed: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "secondmind",
				Name:      "sync_processed_total",
				Help:      "Total sync jobs successfully processed",
			}),
			SyncFailed: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "secondmind",
				Name:      "sync_failed_total",
				Help:      "Total sync jobs failed during processing",
			}),
		}
		prometheus.MustRegister(
			global.ChatRequests,
			global.ProviderAttempts,
			global.FallbackExhausted,
			global.SyncEnqueued,
			global.SyncProcessed,
			global.SyncFailed,
		)
	})
	return global
}
