package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"taskqueue-gateway/middleware/admission"
	"taskqueue-gateway/middleware/admission/infra"
)

func main() {
	// Exemplo: injetando os middlewares diretamente no seu webserver (sem proxy)
	store, err := infra.NewStore(infra.Config{
		Algorithm:         "token_bucket",
		RequestsPerMinute: 300,
		Burst:             10,
		EnableMetrics:     true,
	})
	if err != nil {
		log.Fatalf("store error: %v", err)
	}

	queue, err := infra.NewQueue(infra.ThrottleConfig{
		MaxConcurrent:  50,
		QueueSize:      200,
		Timeout:        10 * time.Second,
		EnablePriority: true,
	})
	if err != nil {
		log.Fatalf("queue error: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	store.StartJanitor(ctx)
	queue.StartJanitor(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /tasks", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"status":"accepted"}`))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	h := http.Handler(mux)
	h = admission.ThrottleMiddleware(admission.ThrottleOptions{
		Queue:          queue,
		PriorityHeader: "X-Priority",
	})(h)
	h = admission.Middleware(admission.Options{
		Store:               store,
		KeyHeader:           "X-Api-Key", // ou vazio para usar IP
		TrustXForwardedFor:  true,
		AddRateLimitHeaders: true,
	})(h)

	addr := ":8081"
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		addr = v
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Printf("example server listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}
}
