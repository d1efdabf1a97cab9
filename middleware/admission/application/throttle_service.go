package application

import (
	"context"

	"taskqueue-gateway/middleware/admission/domain"
)

// AdmitResult resume para o chamador o que aconteceu com a admissão.
type AdmitResult uint8

const (
	// AdmitOK: despachado; chame o done retornado exatamente uma vez ao terminar.
	AdmitOK AdmitResult = iota
	// AdmitQueueFull: rejeitado na submissão, nada foi enfileirado.
	AdmitQueueFull
	// AdmitExpired: esperou mais que o timeout na fila e nunca executou.
	AdmitExpired
	// AdmitAbandoned: o chamador desistiu (ctx cancelado) antes do despacho.
	AdmitAbandoned
)

// ThrottleService concentra a regra de admissão com fila: submete, espera o
// despacho e cuida da desistência do chamador, sem saber nada sobre HTTP.
type ThrottleService struct {
	Queue domain.RequestQueue
}

// Admit submete e espera o desfecho do ticket.
// - Sem Queue configurada, admite direto (passthrough).
// - Em AdmitOK, done libera a vaga; deve ser chamado exatamente uma vez.
// - Se o ctx cancelar antes do despacho, o ticket é cancelado na fila; se o
//   despacho ganhar a corrida, a vaga é devolvida na hora.
func (s ThrottleService) Admit(ctx context.Context, client domain.Key, prio domain.Priority) (done func(), res AdmitResult) {
	if s.Queue == nil {
		return func() {}, AdmitOK
	}

	t, err := s.Queue.Submit(client, prio)
	if err != nil {
		return nil, AdmitQueueFull
	}

	select {
	case out := <-t.Ready:
		return s.settle(t, out)
	case <-ctx.Done():
		if s.Queue.Cancel(t.ID) {
			return nil, AdmitAbandoned
		}
		// corrida: o ticket já saiu da fila; o desfecho já está no canal
		out := <-t.Ready
		if out == domain.OutcomeDispatched {
			s.Queue.Complete(t.ID)
		}
		return nil, AdmitAbandoned
	}
}

func (s ThrottleService) settle(t *domain.Ticket, out domain.Outcome) (func(), AdmitResult) {
	switch out {
	case domain.OutcomeDispatched:
		return func() { s.Queue.Complete(t.ID) }, AdmitOK
	case domain.OutcomeExpired:
		return nil, AdmitExpired
	default:
		return nil, AdmitAbandoned
	}
}
