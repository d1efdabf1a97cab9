package infra

import (
	"sync/atomic"
	"time"

	"taskqueue-gateway/middleware/admission/domain"
)

// collector acumula os contadores agregados do rate limiter fora do caminho
// crítico: só atômicos, sem lock. Com enabled=false nada é registrado e o
// custo é um branch.
type collector struct {
	enabled bool

	total   atomic.Uint64
	allowed atomic.Uint64
	blocked atomic.Uint64
	// média móvel simples da latência de decisão: avg = (avg + amostra) / 2.
	// Duas goroutines podem perder uma amostra entre Load e Store; é um dado
	// estatístico best-effort e isso não corrompe nada.
	avgNanos atomic.Int64
}

func (c *collector) record(allowed bool, elapsed time.Duration) {
	if !c.enabled {
		return
	}
	c.total.Add(1)
	if allowed {
		c.allowed.Add(1)
	} else {
		c.blocked.Add(1)
	}
	old := c.avgNanos.Load()
	c.avgNanos.Store((old + elapsed.Nanoseconds()) / 2)
}

func (c *collector) snapshot() domain.Metrics {
	return domain.Metrics{
		TotalRequests:       c.total.Load(),
		AllowedRequests:     c.allowed.Load(),
		BlockedRequests:     c.blocked.Load(),
		AverageResponseTime: time.Duration(c.avgNanos.Load()),
	}
}
