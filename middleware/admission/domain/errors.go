package domain

import "errors"

var (
	// ErrQueueFull indica que a fila do throttler estava cheia no momento da
	// submissão. Nada foi criado nem enfileirado.
	ErrQueueFull = errors.New("throttle queue is full")

	// ErrUnknownAlgorithm indica um algoritmo de rate limit não suportado.
	ErrUnknownAlgorithm = errors.New("unknown rate limit algorithm")

	// ErrUnknownPriority indica um nível de prioridade não reconhecido.
	ErrUnknownPriority = errors.New("unknown request priority")
)

func IsQueueFull(err error) bool {
	return errors.Is(err, ErrQueueFull)
}
