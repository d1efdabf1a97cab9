package infra

import (
	"context"

	"taskqueue-gateway/middleware/admission/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	admissionDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "taskgate",
			Subsystem: "admission",
			Name:      "decisions_total",
			Help:      "Total de decisões de admissão por resultado",
		},
		// result: allowed | denied | blocked
		[]string{"result"},
	)
)

// PrometheusStatsStore implementa domain.StatsStore exportando as decisões
// como contadores Prometheus. A exposição via /metrics fica a cargo do binário
// (promhttp), fora deste pacote.
//
// Labels propositalmente sem Key/Path: cardinalidade controlada.
type PrometheusStatsStore struct{}

func NewPrometheusStatsStore() *PrometheusStatsStore {
	return &PrometheusStatsStore{}
}

func (s *PrometheusStatsStore) Record(_ context.Context, ev domain.StatsEvent) error {
	result := "denied"
	switch {
	case ev.Allowed:
		result = "allowed"
	case ev.Blocked:
		result = "blocked"
	}
	admissionDecisions.WithLabelValues(result).Inc()
	return nil
}

// RegisterAdmissionGauges registra gauges de observação contínua do store e da
// fila no registry padrão. Chame no máximo uma vez por processo (registrar de
// novo causa panic do Prometheus, como qualquer collector duplicado).
func RegisterAdmissionGauges(store *Store, queue *Queue) {
	if store != nil {
		promauto.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "taskgate",
			Subsystem: "admission",
			Name:      "active_clients",
			Help:      "Número de chaves vivas no store de rate limit",
		}, func() float64 { return float64(store.Len()) })

		promauto.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "taskgate",
			Subsystem: "admission",
			Name:      "decision_latency_avg_seconds",
			Help:      "Média móvel da latência de decisão do rate limiter",
		}, func() float64 { return store.Metrics().AverageResponseTime.Seconds() })
	}

	if queue != nil {
		promauto.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "taskgate",
			Subsystem: "throttle",
			Name:      "inflight_requests",
			Help:      "Requisições despachadas em execução",
		}, func() float64 {
			inflight, _ := queue.Depth()
			return float64(inflight)
		})

		promauto.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "taskgate",
			Subsystem: "throttle",
			Name:      "queued_requests",
			Help:      "Requisições esperando na fila do throttler",
		}, func() float64 {
			_, queued := queue.Depth()
			return float64(queued)
		})
	}
}
