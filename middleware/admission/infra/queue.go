package infra

import (
	"fmt"
	"sync"
	"time"

	"taskqueue-gateway/middleware/admission/domain"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// numPriorities cobre Low..Critical.
const numPriorities = int(domain.PriorityCritical) + 1

// ThrottleConfig é a configuração imutável de uma Queue, validada na construção.
type ThrottleConfig struct {
	MaxConcurrent int
	// QueueSize limita só a fila de espera; em execução não conta.
	QueueSize int
	// Timeout é o tempo máximo de espera na fila, contado da submissão.
	Timeout time.Duration
	// EnablePriority desligado trata toda submissão como prioridade igual (FIFO puro).
	EnablePriority bool
}

func (c *ThrottleConfig) validate() error {
	if c.MaxConcurrent <= 0 {
		return fmt.Errorf("max concurrent must be > 0, got %d", c.MaxConcurrent)
	}
	if c.QueueSize < 0 {
		return fmt.Errorf("queue size must be >= 0, got %d", c.QueueSize)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must be >= 0, got %s", c.Timeout)
	}
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
	return nil
}

// waiter é um ticket do lado de dentro da fila. ready tem buffer 1 e recebe
// exatamente um Outcome, sempre com q.mu em mãos — quem não achar o waiter na
// fila pode ler o canal sem medo de corrida.
type waiter struct {
	id         string
	client     domain.Key
	priority   domain.Priority
	enqueuedAt time.Time
	ready      chan domain.Outcome
}

// Queue implementa domain.RequestQueue: limita execuções simultâneas a
// MaxConcurrent, enfileira o excedente em uma fila FIFO por nível de
// prioridade e expira quem espera mais que Timeout.
//
// Invariantes: em execução nunca passa de MaxConcurrent; na fila nunca passa
// de QueueSize.
type Queue struct {
	cfg    ThrottleConfig
	logger *zap.Logger
	// sweepEvery é o período do janitor de expiração; a expiração também roda
	// lazy em todo Submit/Complete.
	sweepEvery time.Duration

	mu       sync.Mutex
	inflight map[string]struct{}
	// um slice FIFO por prioridade, varrido da maior para a menor
	queues [numPriorities][]*waiter
	queued int
}

type QueueOption func(*Queue)

func WithQueueLogger(l *zap.Logger) QueueOption {
	return func(q *Queue) {
		if l != nil {
			q.logger = l
		}
	}
}

// WithSweepEvery sobrescreve o período do janitor de expiração (padrão: metade do Timeout).
func WithSweepEvery(d time.Duration) QueueOption {
	return func(q *Queue) { q.sweepEvery = d }
}

func NewQueue(cfg ThrottleConfig, opts ...QueueOption) (*Queue, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("throttle config: %w", err)
	}

	q := &Queue{
		cfg:        cfg,
		logger:     zap.NewNop(),
		sweepEvery: cfg.Timeout / 2,
		inflight:   make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q, nil
}

// Submit implementa domain.RequestQueue. Nunca bloqueia: o chamador observa o
// despacho (ou a expiração) pelo canal Ready do ticket.
func (q *Queue) Submit(client domain.Key, prio domain.Priority) (*domain.Ticket, error) {
	if prio > domain.PriorityCritical {
		prio = domain.PriorityCritical
	}

	now := time.Now()
	w := &waiter{
		id:         uuid.NewString(),
		client:     client,
		priority:   prio,
		enqueuedAt: now,
		ready:      make(chan domain.Outcome, 1),
	}

	q.mu.Lock()
	// expira antes de medir a fila: vagas de quem estourou o timeout ficam
	// disponíveis para esta submissão
	q.expireLocked(now)

	switch {
	case len(q.inflight) < q.cfg.MaxConcurrent:
		q.inflight[w.id] = struct{}{}
		w.ready <- domain.OutcomeDispatched
	case q.queued < q.cfg.QueueSize:
		idx := q.index(prio)
		q.queues[idx] = append(q.queues[idx], w)
		q.queued++
	default:
		q.mu.Unlock()
		return nil, domain.ErrQueueFull
	}
	q.mu.Unlock()

	return &domain.Ticket{
		ID:         w.id,
		Client:     client,
		Priority:   prio,
		EnqueuedAt: now,
		Ready:      w.ready,
	}, nil
}

// Complete implementa domain.RequestQueue. Idempotente: a segunda chamada para
// o mesmo ID retorna false sem nenhum efeito colateral.
func (q *Queue) Complete(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.inflight[id]; !ok {
		return false
	}
	delete(q.inflight, id)
	q.dispatchLocked(time.Now())
	return true
}

// Cancel remove um ticket ainda na fila (desistência do chamador). Não conta
// como trabalho concluído e não mexe nas vagas de execução. Retorna false se o
// ticket já foi despachado, expirado ou nunca existiu.
func (q *Queue) Cancel(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i := range q.queues {
		for j, w := range q.queues[i] {
			if w.id != id {
				continue
			}
			q.queues[i] = append(q.queues[i][:j], q.queues[i][j+1:]...)
			q.queued--
			w.ready <- domain.OutcomeCancelled
			return true
		}
	}
	return false
}

// Depth retorna quantos tickets estão em execução e quantos na fila.
func (q *Queue) Depth() (inflight, queued int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.inflight), q.queued
}

// index decide em qual fila a submissão entra. Com prioridade desligada todo
// mundo cai na mesma fila, o que dá o FIFO puro.
func (q *Queue) index(prio domain.Priority) int {
	if !q.cfg.EnablePriority {
		return int(domain.PriorityNormal)
	}
	return int(prio)
}

// expireLocked remove da fila quem estourou o Timeout e avisa pelo canal.
// Chamar com q.mu em mãos.
func (q *Queue) expireLocked(now time.Time) {
	expired := 0
	for i := range q.queues {
		src := q.queues[i]
		if len(src) == 0 {
			continue
		}
		kept := src[:0]
		for _, w := range src {
			if now.Sub(w.enqueuedAt) > q.cfg.Timeout {
				w.ready <- domain.OutcomeExpired
				q.queued--
				expired++
				continue
			}
			kept = append(kept, w)
		}
		q.queues[i] = kept
	}
	if expired > 0 {
		q.logger.Warn("expired queued requests", zap.Int("expired", expired))
	}
}

// dispatchLocked preenche vagas livres com os melhores tickets da fila:
// prioridade maior primeiro, FIFO dentro do mesmo nível. Chamar com q.mu em mãos.
func (q *Queue) dispatchLocked(now time.Time) {
	q.expireLocked(now)
	for len(q.inflight) < q.cfg.MaxConcurrent {
		w := q.popLocked()
		if w == nil {
			return
		}
		q.inflight[w.id] = struct{}{}
		w.ready <- domain.OutcomeDispatched
	}
}

func (q *Queue) popLocked() *waiter {
	for i := numPriorities - 1; i >= 0; i-- {
		if len(q.queues[i]) == 0 {
			continue
		}
		w := q.queues[i][0]
		q.queues[i] = q.queues[i][1:]
		q.queued--
		return w
	}
	return nil
}

// StartJanitor inicia a varredura periódica de expiração, para ninguém ficar
// esperando em silêncio quando não chega Submit/Complete. Pare cancelando o
// contexto.
func (q *Queue) StartJanitor(ctx DoneContext) {
	if q.sweepEvery <= 0 {
		return
	}

	t := time.NewTicker(q.sweepEvery)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				q.mu.Lock()
				q.expireLocked(time.Now())
				q.mu.Unlock()
			}
		}
	}()
}
