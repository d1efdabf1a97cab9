package domain

import (
	"fmt"
	"strings"
	"time"
)

// Priority é o nível de prioridade de uma submissão ao throttler.
// A ordem importa: Low < Normal < High < Critical.
type Priority uint8

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityCritical
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	}
	return fmt.Sprintf("priority(%d)", uint8(p))
}

// ParsePriority converte o valor vindo do cliente (ex: header) em Priority.
func ParsePriority(s string) (Priority, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return PriorityLow, nil
	case "normal":
		return PriorityNormal, nil
	case "high":
		return PriorityHigh, nil
	case "critical":
		return PriorityCritical, nil
	}
	return PriorityNormal, fmt.Errorf("%w: %q", ErrUnknownPriority, s)
}

// Outcome é o desfecho de um Ticket: despachado para execução, expirado na
// fila ou cancelado pelo próprio dono.
type Outcome uint8

const (
	OutcomeDispatched Outcome = iota
	OutcomeExpired
	OutcomeCancelled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeDispatched:
		return "dispatched"
	case OutcomeExpired:
		return "expired"
	case OutcomeCancelled:
		return "cancelled"
	}
	return fmt.Sprintf("outcome(%d)", uint8(o))
}

// Ticket representa uma submissão aceita pelo throttler (despachada ou na fila).
//
// Ready entrega exatamente um Outcome por ticket. Submissões despachadas na
// hora já têm OutcomeDispatched disponível no canal (buffer 1): o chamador
// nunca bloqueia dentro de Submit, só ao esperar o Ready.
type Ticket struct {
	ID         string
	Client     Key
	Priority   Priority
	EnqueuedAt time.Time
	Ready      <-chan Outcome
}

// RequestQueue limita quantas requisições admitidas executam ao mesmo tempo,
// enfileirando o excedente por prioridade e expirando quem espera demais.
//
// Submit nunca bloqueia: retorna o ticket (despachado ou enfileirado) ou
// ErrQueueFull. Complete libera a vaga e despacha o próximo da fila; retorna
// false para IDs desconhecidos, sem efeito colateral. Cancel remove um ticket
// ainda na fila sem contar como trabalho concluído.
type RequestQueue interface {
	Submit(Key, Priority) (*Ticket, error)
	Complete(id string) bool
	Cancel(id string) bool
	Depth() (inflight, queued int)
}
