package infra

import (
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"taskqueue-gateway/middleware/admission/domain"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// shardCount é fixo e potência de 2 para o índice sair de um AND simples.
const shardCount = 32

// Config é a configuração imutável de um Store, validada na construção.
// Configuração inválida é rejeitada em NewStore, nunca em tempo de chamada.
type Config struct {
	Algorithm         domain.Algorithm
	RequestsPerMinute int
	// Burst é opcional; 0 assume RequestsPerMinute. O significado depende do
	// algoritmo (capacidade do bucket no token/leaky bucket).
	Burst  int
	Window time.Duration
	// CleanupInterval controla o período do janitor e, por padrão, o tempo de
	// inatividade a partir do qual uma entrada vira candidata a remoção.
	CleanupInterval time.Duration
	EnableMetrics   bool
}

func (c *Config) validate() error {
	if c.Algorithm == "" {
		c.Algorithm = domain.AlgorithmTokenBucket
	}
	switch c.Algorithm {
	case domain.AlgorithmTokenBucket, domain.AlgorithmSlidingWindow,
		domain.AlgorithmFixedWindow, domain.AlgorithmLeakyBucket:
	default:
		return fmt.Errorf("%w: %q", domain.ErrUnknownAlgorithm, c.Algorithm)
	}
	if c.RequestsPerMinute <= 0 {
		return fmt.Errorf("requests per minute must be > 0, got %d", c.RequestsPerMinute)
	}
	if c.Burst < 0 {
		return fmt.Errorf("burst must be >= 0, got %d", c.Burst)
	}
	if c.Burst == 0 {
		c.Burst = c.RequestsPerMinute
	}
	if c.Window < 0 {
		return fmt.Errorf("window must be >= 0, got %s", c.Window)
	}
	if c.Window == 0 {
		c.Window = time.Minute
	}
	if c.CleanupInterval < 0 {
		return fmt.Errorf("cleanup interval must be >= 0, got %s", c.CleanupInterval)
	}
	if c.CleanupInterval == 0 {
		c.CleanupInterval = 5 * time.Minute
	}
	return nil
}

// clientEntry guarda o estado mutável de uma chave. Só o campo do algoritmo
// configurado é usado; o acesso é sempre serializado pelo mutex do shard.
type clientEntry struct {
	// token bucket
	lim *rate.Limiter
	// janela fixa
	windowStart  time.Time
	requestCount int
	// janela deslizante: log de timestamps (unix nanos), no máximo limit entradas
	stamps []int64
	// leaky bucket
	level    float64
	lastLeak time.Time

	lastSeen     time.Time
	blockedUntil time.Time
}

type shard struct {
	mu      sync.Mutex
	entries map[domain.Key]*clientEntry
}

// Store decide admissões por chave com o algoritmo configurado, mantém o
// bloqueio administrativo (Block) e faz limpeza de entradas inativas.
//
// O estado é particionado em shards com mutex próprio: chaves diferentes não
// disputam um lock global, e chamadas concorrentes para a mesma chave ficam
// serializadas (sem double-admit por lost update).
type Store struct {
	cfg    Config
	shards [shardCount]shard

	// take é resolvido uma única vez na construção (sem dispatch por chamada).
	take func(e *clientEntry, now time.Time) bool

	idleTTL      time.Duration
	cleanupEvery time.Duration
	logger       *zap.Logger

	metrics collector
}

type StoreOption func(*Store)

// WithIdleTTL sobrescreve o tempo de inatividade que torna uma entrada
// candidata à remoção (padrão: Config.CleanupInterval).
func WithIdleTTL(d time.Duration) StoreOption {
	return func(s *Store) { s.idleTTL = d }
}

// WithCleanupEvery sobrescreve o período do janitor (padrão: Config.CleanupInterval).
func WithCleanupEvery(d time.Duration) StoreOption {
	return func(s *Store) { s.cleanupEvery = d }
}

func WithLogger(l *zap.Logger) StoreOption {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

func NewStore(cfg Config, opts ...StoreOption) (*Store, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("admission store config: %w", err)
	}

	s := &Store{
		cfg:          cfg,
		idleTTL:      cfg.CleanupInterval,
		cleanupEvery: cfg.CleanupInterval,
		logger:       zap.NewNop(),
	}
	s.metrics.enabled = cfg.EnableMetrics

	switch cfg.Algorithm {
	case domain.AlgorithmTokenBucket:
		s.take = s.takeTokenBucket
	case domain.AlgorithmSlidingWindow:
		s.take = s.takeSlidingWindow
	case domain.AlgorithmFixedWindow:
		s.take = s.takeFixedWindow
	case domain.AlgorithmLeakyBucket:
		s.take = s.takeLeakyBucket
	}

	for i := range s.shards {
		s.shards[i].entries = make(map[domain.Key]*clientEntry)
	}

	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Store) RPM() int                    { return s.cfg.RequestsPerMinute }
func (s *Store) Burst() int                  { return s.cfg.Burst }
func (s *Store) Algorithm() domain.Algorithm { return s.cfg.Algorithm }
func (s *Store) CleanupEvery() time.Duration { return s.cleanupEvery }

func (s *Store) shard(key domain.Key) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &s.shards[h.Sum32()&(shardCount-1)]
}

// Take implementa domain.LimiterStore.
//
// Bloqueio administrativo é checado antes do algoritmo e nega sem tocar nos
// contadores; bloqueio vencido é limpo aqui mesmo, na primeira chamada depois
// de expirar.
func (s *Store) Take(key domain.Key) domain.Verdict {
	start := time.Now()

	sh := s.shard(key)
	sh.mu.Lock()
	now := time.Now()

	e, ok := sh.entries[key]
	if !ok {
		e = s.newEntry(now)
		sh.entries[key] = e
	}

	var v domain.Verdict
	if !e.blockedUntil.IsZero() && now.Before(e.blockedUntil) {
		v = domain.Verdict{Blocked: true, RetryAfter: e.blockedUntil.Sub(now)}
	} else {
		e.blockedUntil = time.Time{}
		v = domain.Verdict{Allowed: s.take(e, now)}
		e.lastSeen = now
	}
	sh.mu.Unlock()

	s.metrics.record(v.Allowed, time.Since(start))
	return v
}

// Block implementa domain.LimiterStore: penalidade manual/administrativa que
// sobrepõe o estado do algoritmo. Cria a entrada se a chave nunca foi vista.
func (s *Store) Block(key domain.Key, d time.Duration) {
	sh := s.shard(key)
	sh.mu.Lock()
	now := time.Now()

	e, ok := sh.entries[key]
	if !ok {
		e = s.newEntry(now)
		sh.entries[key] = e
	}
	e.blockedUntil = now.Add(d)
	e.lastSeen = now
	sh.mu.Unlock()

	s.logger.Warn("client blocked",
		zap.String("key", string(key)),
		zap.Duration("duration", d),
	)
}

func (s *Store) newEntry(now time.Time) *clientEntry {
	e := &clientEntry{lastSeen: now}
	switch s.cfg.Algorithm {
	case domain.AlgorithmTokenBucket:
		// bucket nasce cheio; tokens fracionários ficam por conta do x/time/rate
		e.lim = rate.NewLimiter(rate.Limit(float64(s.cfg.RequestsPerMinute)/60.0), s.cfg.Burst)
	case domain.AlgorithmSlidingWindow:
		e.stamps = make([]int64, 0, s.cfg.RequestsPerMinute)
	case domain.AlgorithmFixedWindow:
		e.windowStart = now
	case domain.AlgorithmLeakyBucket:
		e.lastLeak = now
	}
	return e
}

func (s *Store) takeTokenBucket(e *clientEntry, now time.Time) bool {
	return e.lim.AllowN(now, 1)
}

func (s *Store) takeFixedWindow(e *clientEntry, now time.Time) bool {
	if now.Sub(e.windowStart) >= s.cfg.Window {
		e.windowStart = now
		e.requestCount = 0
	}
	// Fraqueza conhecida de janela fixa: uma rajada no fim da janela seguida de
	// outra no começo da próxima admite até 2x o limite num intervalo curto.
	// Quem precisa do limite em qualquer intervalo usa sliding_window.
	if e.requestCount < s.cfg.RequestsPerMinute {
		e.requestCount++
		return true
	}
	return false
}

func (s *Store) takeSlidingWindow(e *clientEntry, now time.Time) bool {
	// descarta timestamps fora da janela corrente
	cutoff := now.Add(-s.cfg.Window).UnixNano()
	idx := 0
	for idx < len(e.stamps) && e.stamps[idx] <= cutoff {
		idx++
	}
	if idx > 0 {
		e.stamps = e.stamps[:copy(e.stamps, e.stamps[idx:])]
	}

	// o log fica limitado a RequestsPerMinute entradas por chave, então nunca
	// há mais que o limite admitido em QUALQUER janela móvel de Window.
	if len(e.stamps) < s.cfg.RequestsPerMinute {
		e.stamps = append(e.stamps, now.UnixNano())
		return true
	}
	return false
}

func (s *Store) takeLeakyBucket(e *clientEntry, now time.Time) bool {
	// o bucket drena a taxa constante; admitir equivale a conseguir enfileirar
	elapsed := now.Sub(e.lastLeak).Seconds()
	if elapsed > 0 {
		e.level -= elapsed * float64(s.cfg.RequestsPerMinute) / 60.0
		if e.level < 0 {
			e.level = 0
		}
		e.lastLeak = now
	}
	if e.level < float64(s.cfg.Burst) {
		e.level++
		return true
	}
	return false
}

// Len retorna o número de chaves vivas no store.
func (s *Store) Len() int {
	n := 0
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		n += len(sh.entries)
		sh.mu.Unlock()
	}
	return n
}

// Metrics retorna um snapshot dos contadores agregados de decisão.
func (s *Store) Metrics() domain.Metrics {
	m := s.metrics.snapshot()
	m.CurrentClients = s.Len()
	return m
}

// CleanupExpired remove entradas inativas há mais que o idle TTL e retorna a
// contagem exata. Uma entrada com blockedUntil ainda no futuro nunca é
// removida, por mais antiga que seja.
func (s *Store) CleanupExpired() int {
	now := time.Now()
	cutoff := now.Add(-s.idleTTL)
	removed := 0

	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		for k, e := range sh.entries {
			if !e.blockedUntil.IsZero() && now.Before(e.blockedUntil) {
				continue
			}
			if e.lastSeen.Before(cutoff) {
				delete(sh.entries, k)
				removed++
			}
		}
		sh.mu.Unlock()
	}
	return removed
}

// StartJanitor inicia uma goroutine que limpa chaves inativas periodicamente.
// Pare cancelando o contexto. Um ciclo vazio ou atrasado nunca afeta o
// caminho de admissão.
func (s *Store) StartJanitor(ctx DoneContext) {
	if s.cleanupEvery <= 0 {
		return
	}

	t := time.NewTicker(s.cleanupEvery)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if n := s.CleanupExpired(); n > 0 {
					s.logger.Debug("cleaned up idle client entries", zap.Int("removed", n))
				}
			}
		}
	}()
}

// DoneContext é o mínimo necessário para aceitar context.Context sem importar context aqui.
// (Permite reuso em libs sem acoplar.)
type DoneContext interface {
	Done() <-chan struct{}
}
