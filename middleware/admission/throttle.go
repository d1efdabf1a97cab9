package admission

import (
	"net/http"

	"taskqueue-gateway/middleware/admission/application"
	"taskqueue-gateway/middleware/admission/domain"
)

type ThrottleOptions struct {
	Queue domain.RequestQueue
	// PriorityHeader é o header de onde vem a prioridade (low/normal/high/critical).
	// Vazio ou valor inválido: Normal.
	PriorityHeader     string
	KeyFn              KeyFunc
	KeyHeader          string
	TrustXForwardedFor bool
	// RejectStatus responde fila cheia; TimeoutStatus responde expiração na fila.
	RejectStatus  int
	TimeoutStatus int
}

func ThrottleMiddleware(opts ThrottleOptions) func(next http.Handler) http.Handler {
	if opts.Queue == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	if opts.RejectStatus == 0 {
		opts.RejectStatus = http.StatusServiceUnavailable
	}
	if opts.TimeoutStatus == 0 {
		opts.TimeoutStatus = http.StatusGatewayTimeout
	}
	if opts.KeyFn == nil {
		opts.KeyFn = DefaultKeyFunc(opts.KeyHeader, opts.TrustXForwardedFor)
	}

	svc := application.ThrottleService{Queue: opts.Queue}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			prio := domain.PriorityNormal
			if opts.PriorityHeader != "" {
				if p, err := domain.ParsePriority(r.Header.Get(opts.PriorityHeader)); err == nil {
					prio = p
				}
			}

			done, res := svc.Admit(r.Context(), domain.Key(opts.KeyFn(r)), prio)
			switch res {
			case application.AdmitOK:
				defer done()
				next.ServeHTTP(w, r)
			case application.AdmitQueueFull:
				http.Error(w, http.StatusText(opts.RejectStatus), opts.RejectStatus)
			case application.AdmitExpired:
				http.Error(w, http.StatusText(opts.TimeoutStatus), opts.TimeoutStatus)
			default:
				// cliente desistiu; não há mais quem leia a resposta
			}
		})
	}
}
