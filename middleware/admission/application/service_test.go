package application

import (
	"testing"
	"time"

	"taskqueue-gateway/middleware/admission/domain"
)

type fakeStore struct {
	verdict domain.Verdict

	blockedKey domain.Key
	blockedFor time.Duration
}

func (s *fakeStore) Take(domain.Key) domain.Verdict { return s.verdict }

func (s *fakeStore) Block(key domain.Key, d time.Duration) {
	s.blockedKey = key
	s.blockedFor = d
}

func TestService_Decide_AllowsWhenNoStore(t *testing.T) {
	svc := Service{}
	dec := svc.Decide("k")
	if !dec.Allowed {
		t.Fatalf("expected allowed")
	}
	if dec.RetryAfter != 0 {
		t.Fatalf("expected RetryAfter=0 when allowed, got %s", dec.RetryAfter)
	}
}

func TestService_Decide_AllowsWhenStoreAllows(t *testing.T) {
	svc := Service{Store: &fakeStore{verdict: domain.Verdict{Allowed: true}}, RetryAfter: 5 * time.Second}
	dec := svc.Decide("k")
	if !dec.Allowed {
		t.Fatalf("expected allowed")
	}
}

func TestService_Decide_DeniesWithRetryAfterDefault(t *testing.T) {
	svc := Service{Store: &fakeStore{}}
	dec := svc.Decide("k")
	if dec.Allowed {
		t.Fatalf("expected denied")
	}
	if dec.RetryAfter != 1*time.Second {
		t.Fatalf("expected default RetryAfter=1s, got %s", dec.RetryAfter)
	}
}

func TestService_Decide_DeniesWithConfiguredRetryAfter(t *testing.T) {
	svc := Service{Store: &fakeStore{}, RetryAfter: 2500 * time.Millisecond}
	dec := svc.Decide("k")
	if dec.Allowed {
		t.Fatalf("expected denied")
	}
	if dec.RetryAfter != 2500*time.Millisecond {
		t.Fatalf("expected RetryAfter=2.5s, got %s", dec.RetryAfter)
	}
}

func TestService_Decide_BlockedUsesStoreRetryAfter(t *testing.T) {
	// bloqueio administrativo: o store sabe exatamente quanto falta
	svc := Service{
		Store:      &fakeStore{verdict: domain.Verdict{Blocked: true, RetryAfter: 42 * time.Second}},
		RetryAfter: 1 * time.Second,
	}
	dec := svc.Decide("k")
	if dec.Allowed {
		t.Fatalf("expected denied")
	}
	if !dec.Blocked {
		t.Fatalf("expected blocked flag to survive into the decision")
	}
	if dec.RetryAfter != 42*time.Second {
		t.Fatalf("expected store RetryAfter=42s, got %s", dec.RetryAfter)
	}
}

func TestService_Block_DelegatesToStore(t *testing.T) {
	store := &fakeStore{}
	svc := Service{Store: store}

	svc.Block("abusado", 5*time.Minute)
	if store.blockedKey != "abusado" || store.blockedFor != 5*time.Minute {
		t.Fatalf("expected block to be delegated, got key=%q dur=%s", store.blockedKey, store.blockedFor)
	}
}

func TestService_Block_NoStoreIsNoop(t *testing.T) {
	svc := Service{}
	svc.Block("k", time.Minute) // não pode entrar em pânico
}
