package admission

import (
	"encoding/json"
	"net/http"
	"time"

	"taskqueue-gateway/middleware/admission/domain"
)

// AdminOptions configura o handler administrativo do gateway.
//
// Metrics e Queue são opcionais; sem eles o /admission/stats devolve só o que
// existir. Token vazio desliga a autenticação (uso local/dev).
type AdminOptions struct {
	Store   domain.LimiterStore
	Metrics func() domain.Metrics
	Queue   domain.RequestQueue
	// Token esperado no header X-Admin-Token.
	Token string
}

type adminStats struct {
	Limiter  *domain.Metrics `json:"limiter,omitempty"`
	Inflight int             `json:"inflight"`
	Queued   int             `json:"queued"`
}

type adminError struct {
	Error string `json:"error"`
}

// AdminHandler expõe:
//
//	GET  /admission/stats  métricas agregadas + profundidade da fila
//	POST /admission/block  bloqueio manual (query: key, duration)
func AdminHandler(opts AdminOptions) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /admission/stats", func(w http.ResponseWriter, r *http.Request) {
		st := adminStats{}
		if opts.Metrics != nil {
			m := opts.Metrics()
			st.Limiter = &m
		}
		if opts.Queue != nil {
			st.Inflight, st.Queued = opts.Queue.Depth()
		}
		writeJSON(w, http.StatusOK, st)
	})

	mux.HandleFunc("POST /admission/block", func(w http.ResponseWriter, r *http.Request) {
		if opts.Store == nil {
			writeJSON(w, http.StatusServiceUnavailable, adminError{Error: "no limiter store configured"})
			return
		}
		key := r.URL.Query().Get("key")
		if key == "" {
			writeJSON(w, http.StatusBadRequest, adminError{Error: "key is required"})
			return
		}
		d, err := time.ParseDuration(r.URL.Query().Get("duration"))
		if err != nil || d <= 0 {
			writeJSON(w, http.StatusBadRequest, adminError{Error: "duration must be a positive Go duration (ex: 5m)"})
			return
		}
		opts.Store.Block(domain.Key(key), d)
		writeJSON(w, http.StatusOK, map[string]string{
			"blocked": key,
			"until":   time.Now().Add(d).UTC().Format(time.RFC3339),
		})
	})

	if opts.Token == "" {
		return mux
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Admin-Token") != opts.Token {
			writeJSON(w, http.StatusUnauthorized, adminError{Error: "invalid admin token"})
			return
		}
		mux.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
