package domain

// Camada de domínio do rate limit.
//
// Regras e contratos (interfaces/tipos) sem dependência de net/http.

import (
	"fmt"
	"strings"
	"time"
)

type Key string

// Algorithm enumera os algoritmos de rate limit suportados.
type Algorithm string

const (
	AlgorithmTokenBucket   Algorithm = "token_bucket"
	AlgorithmSlidingWindow Algorithm = "sliding_window"
	AlgorithmFixedWindow   Algorithm = "fixed_window"
	AlgorithmLeakyBucket   Algorithm = "leaky_bucket"
)

// ParseAlgorithm converte o valor de configuração (ex: env var) em Algorithm.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch Algorithm(strings.ToLower(strings.TrimSpace(s))) {
	case AlgorithmTokenBucket:
		return AlgorithmTokenBucket, nil
	case AlgorithmSlidingWindow:
		return AlgorithmSlidingWindow, nil
	case AlgorithmFixedWindow:
		return AlgorithmFixedWindow, nil
	case AlgorithmLeakyBucket:
		return AlgorithmLeakyBucket, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownAlgorithm, s)
}

// Verdict é o resultado bruto de uma tentativa de admissão para uma chave.
//
// Negar não é erro: é um desfecho normal de operação.
type Verdict struct {
	Allowed bool
	// Blocked indica bloqueio administrativo explícito (Block), e não excesso
	// de taxa.
	Blocked bool
	// RetryAfter > 0 quando o store sabe exatamente quanto falta para a chave
	// voltar a ser aceita (ex: fim de um bloqueio administrativo).
	RetryAfter time.Duration
}

// LimiterStore decide e registra admissões por chave (ex: IP, API key, usuário).
//
// Take deve ser seguro sob chamadas concorrentes para a mesma chave e nunca
// bloquear esperando I/O ou outra requisição.
type LimiterStore interface {
	Take(Key) Verdict
	Block(Key, time.Duration)
}

type Decision struct {
	Allowed bool
	// Blocked replica Verdict.Blocked para a camada HTTP diferenciar os casos.
	Blocked bool
	// RetryAfter é o valor a ser retornado em Retry-After quando bloquear.
	// Se 0, não há recomendação.
	RetryAfter time.Duration
}

// Metrics agrega os contadores de decisão do rate limiter.
//
// CurrentClients é o tamanho vivo do store; AverageResponseTime é a latência
// da decisão, não da tarefa.
type Metrics struct {
	TotalRequests       uint64        `json:"total_requests"`
	AllowedRequests     uint64        `json:"allowed_requests"`
	BlockedRequests     uint64        `json:"blocked_requests"`
	CurrentClients      int           `json:"current_clients"`
	AverageResponseTime time.Duration `json:"average_response_time_ns"`
}

// BlockRate retorna a fração de requisições negadas.
func (m Metrics) BlockRate() float64 {
	if m.TotalRequests == 0 {
		return 0
	}
	return float64(m.BlockedRequests) / float64(m.TotalRequests)
}

// AllowRate retorna a fração de requisições admitidas.
func (m Metrics) AllowRate() float64 {
	if m.TotalRequests == 0 {
		return 0
	}
	return float64(m.AllowedRequests) / float64(m.TotalRequests)
}
