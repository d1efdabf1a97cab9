package infra

import (
	"context"
	"testing"
	"time"

	"taskqueue-gateway/middleware/admission/domain"

	"github.com/stretchr/testify/require"
)

func mustQueue(t *testing.T, cfg ThrottleConfig, opts ...QueueOption) *Queue {
	t.Helper()
	q, err := NewQueue(cfg, opts...)
	require.NoError(t, err)
	return q
}

func mustOutcome(t *testing.T, tk *domain.Ticket) domain.Outcome {
	t.Helper()
	select {
	case o := <-tk.Ready:
		return o
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("timeout esperando desfecho do ticket %s", tk.ID)
		return 0
	}
}

func requirePending(t *testing.T, tk *domain.Ticket) {
	t.Helper()
	select {
	case o := <-tk.Ready:
		t.Fatalf("ticket %s não devia ter desfecho ainda, veio %s", tk.ID, o)
	default:
	}
}

func TestNewQueue_RejectsInvalidConfig(t *testing.T) {
	_, err := NewQueue(ThrottleConfig{MaxConcurrent: 0})
	require.Error(t, err)

	_, err = NewQueue(ThrottleConfig{MaxConcurrent: 1, QueueSize: -1})
	require.Error(t, err)
}

func TestQueue_DispatchesUpToMaxConcurrent(t *testing.T) {
	q := mustQueue(t, ThrottleConfig{MaxConcurrent: 2, QueueSize: 10, EnablePriority: true})

	var tickets []*domain.Ticket
	for i := 0; i < 5; i++ {
		tk, err := q.Submit("c", domain.PriorityNormal)
		require.NoError(t, err)
		tickets = append(tickets, tk)
	}

	require.Equal(t, domain.OutcomeDispatched, mustOutcome(t, tickets[0]))
	require.Equal(t, domain.OutcomeDispatched, mustOutcome(t, tickets[1]))
	for _, tk := range tickets[2:] {
		requirePending(t, tk)
	}

	inflight, queued := q.Depth()
	require.Equal(t, 2, inflight, "nunca mais que MaxConcurrent em execução")
	require.Equal(t, 3, queued)
}

func TestQueue_PriorityBeatsEnqueueOrder(t *testing.T) {
	q := mustQueue(t, ThrottleConfig{MaxConcurrent: 1, QueueSize: 4, EnablePriority: true})

	holder, err := q.Submit("c", domain.PriorityNormal)
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeDispatched, mustOutcome(t, holder))

	low, err := q.Submit("c", domain.PriorityLow)
	require.NoError(t, err)
	crit, err := q.Submit("c", domain.PriorityCritical)
	require.NoError(t, err)

	require.True(t, q.Complete(holder.ID))
	require.Equal(t, domain.OutcomeDispatched, mustOutcome(t, crit),
		"critical fura a fila mesmo tendo entrado depois")
	requirePending(t, low)

	require.True(t, q.Complete(crit.ID))
	require.Equal(t, domain.OutcomeDispatched, mustOutcome(t, low))
}

func TestQueue_FIFOWithinSamePriority(t *testing.T) {
	q := mustQueue(t, ThrottleConfig{MaxConcurrent: 1, QueueSize: 4, EnablePriority: true})

	holder, _ := q.Submit("c", domain.PriorityNormal)
	require.Equal(t, domain.OutcomeDispatched, mustOutcome(t, holder))

	first, _ := q.Submit("c", domain.PriorityHigh)
	second, _ := q.Submit("c", domain.PriorityHigh)

	require.True(t, q.Complete(holder.ID))
	require.Equal(t, domain.OutcomeDispatched, mustOutcome(t, first))
	requirePending(t, second)
}

func TestQueue_PureFIFOWhenPriorityDisabled(t *testing.T) {
	q := mustQueue(t, ThrottleConfig{MaxConcurrent: 1, QueueSize: 4, EnablePriority: false})

	holder, _ := q.Submit("c", domain.PriorityNormal)
	require.Equal(t, domain.OutcomeDispatched, mustOutcome(t, holder))

	low, _ := q.Submit("c", domain.PriorityLow)
	crit, _ := q.Submit("c", domain.PriorityCritical)

	require.True(t, q.Complete(holder.ID))
	require.Equal(t, domain.OutcomeDispatched, mustOutcome(t, low),
		"com prioridade desligada vale só a ordem de chegada")
	requirePending(t, crit)
}

func TestQueue_FullRejectsSubmission(t *testing.T) {
	q := mustQueue(t, ThrottleConfig{MaxConcurrent: 1, QueueSize: 1, EnablePriority: true})

	holder, err := q.Submit("c", domain.PriorityNormal)
	require.NoError(t, err)
	_, err = q.Submit("c", domain.PriorityNormal)
	require.NoError(t, err)

	_, err = q.Submit("c", domain.PriorityCritical)
	require.ErrorIs(t, err, domain.ErrQueueFull, "nem critical entra com a fila cheia")
	require.True(t, domain.IsQueueFull(err))

	// rejeição não cria nada: estado intacto
	inflight, queued := q.Depth()
	require.Equal(t, 1, inflight)
	require.Equal(t, 1, queued)
	_ = holder
}

func TestQueue_QueuedRequestExpiresAfterTimeout(t *testing.T) {
	q := mustQueue(t, ThrottleConfig{
		MaxConcurrent:  1,
		QueueSize:      1,
		Timeout:        40 * time.Millisecond,
		EnablePriority: true,
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.StartJanitor(ctx)

	holder, _ := q.Submit("c", domain.PriorityNormal)
	require.Equal(t, domain.OutcomeDispatched, mustOutcome(t, holder))

	queued, _ := q.Submit("c", domain.PriorityNormal)
	require.Equal(t, domain.OutcomeExpired, mustOutcome(t, queued),
		"esperou além do timeout e nunca pode ser despachado")

	// a vaga na fila voltou a existir
	again, err := q.Submit("c", domain.PriorityNormal)
	require.NoError(t, err)
	requirePending(t, again)

	// completar o primeiro despacha o novo, não o expirado
	require.True(t, q.Complete(holder.ID))
	require.Equal(t, domain.OutcomeDispatched, mustOutcome(t, again))
}

func TestQueue_LazyExpiryFreesRoomOnSubmit(t *testing.T) {
	// sem janitor: a expiração lazy no Submit tem que abrir espaço sozinha
	q := mustQueue(t, ThrottleConfig{
		MaxConcurrent:  1,
		QueueSize:      1,
		Timeout:        20 * time.Millisecond,
		EnablePriority: true,
	}, WithSweepEvery(0))

	holder, _ := q.Submit("c", domain.PriorityNormal)
	require.Equal(t, domain.OutcomeDispatched, mustOutcome(t, holder))
	stale, _ := q.Submit("c", domain.PriorityNormal)

	time.Sleep(40 * time.Millisecond)

	fresh, err := q.Submit("c", domain.PriorityNormal)
	require.NoError(t, err, "a submissão expira o ticket velho e ocupa a vaga")
	require.Equal(t, domain.OutcomeExpired, mustOutcome(t, stale))
	requirePending(t, fresh)
}

func TestQueue_CompleteIsIdempotent(t *testing.T) {
	q := mustQueue(t, ThrottleConfig{MaxConcurrent: 1, QueueSize: 1})

	tk, _ := q.Submit("c", domain.PriorityNormal)
	require.Equal(t, domain.OutcomeDispatched, mustOutcome(t, tk))

	require.True(t, q.Complete(tk.ID))
	require.False(t, q.Complete(tk.ID), "segunda conclusão do mesmo ID é no-op")
	require.False(t, q.Complete("nunca-existiu"))
}

func TestQueue_CancelRemovesQueuedTicket(t *testing.T) {
	q := mustQueue(t, ThrottleConfig{MaxConcurrent: 1, QueueSize: 2, EnablePriority: true})

	holder, _ := q.Submit("c", domain.PriorityNormal)
	require.Equal(t, domain.OutcomeDispatched, mustOutcome(t, holder))
	queued, _ := q.Submit("c", domain.PriorityNormal)

	require.True(t, q.Cancel(queued.ID))
	require.Equal(t, domain.OutcomeCancelled, mustOutcome(t, queued))
	require.False(t, q.Cancel(queued.ID))

	_, n := q.Depth()
	require.Zero(t, n)

	// cancelar não libera vaga de execução
	require.False(t, q.Cancel(holder.ID), "ticket despachado não se cancela, se completa")
}
