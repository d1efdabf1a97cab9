package application

import (
	"time"

	"taskqueue-gateway/middleware/admission/domain"
)

// Service concentra a regra de aplicação do rate limit.
//
// Ele não sabe nada sobre HTTP (headers/status), apenas retorna uma decisão.
type Service struct {
	Store      domain.LimiterStore
	RetryAfter time.Duration
}

func (s Service) Decide(key domain.Key) domain.Decision {
	if s.Store == nil {
		return domain.Decision{Allowed: true}
	}
	if s.RetryAfter <= 0 {
		s.RetryAfter = 1 * time.Second
	}

	v := s.Store.Take(key)
	if v.Allowed {
		return domain.Decision{Allowed: true}
	}

	retry := s.RetryAfter
	if v.RetryAfter > 0 {
		// o store sabe exatamente quanto falta (ex: fim de bloqueio)
		retry = v.RetryAfter
	}
	return domain.Decision{Allowed: false, Blocked: v.Blocked, RetryAfter: retry}
}

// Block aplica a penalidade administrativa na chave, quando há store.
func (s Service) Block(key domain.Key, d time.Duration) {
	if s.Store == nil {
		return
	}
	s.Store.Block(key, d)
}
