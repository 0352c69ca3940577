package modelcache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"stockcast/internal/model"
	"stockcast/internal/series"
)

type countingTrainer struct {
	inner model.Trainer
	delay time.Duration
	calls atomic.Int64
}

func (t *countingTrainer) Train(productID string, s series.Series) (model.Model, error) {
	t.calls.Add(1)
	time.Sleep(t.delay)
	return t.inner.Train(productID, s)
}

func newCountingTrainer(delay time.Duration) *countingTrainer {
	return &countingTrainer{inner: model.NewDecompositionTrainer(0.8, 7), delay: delay}
}

type failingBackend struct{}

var errDown = errors.New("connection refused")

func (failingBackend) Get(context.Context, string) ([]byte, bool, error) { return nil, false, errDown }
func (failingBackend) Set(context.Context, string, []byte, time.Duration) error {
	return errDown
}
func (failingBackend) Delete(context.Context, string) error { return errDown }
func (failingBackend) Clear(context.Context) error          { return errDown }
func (failingBackend) Close() error                         { return nil }

func demand(t *testing.T, base float64, n int) series.Series {
	t.Helper()
	values := make([]float64, n)
	for i := range values {
		values[i] = base + float64(i%7)
	}
	s, err := series.FromValues(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), values)
	if err != nil {
		t.Fatalf("FromValues failed: %v", err)
	}
	return s
}

func TestGetOrTrain_SingleTrainingUnderContention(t *testing.T) {
	trainer := newCountingTrainer(50 * time.Millisecond)
	cache := New(trainer, Options{})
	s := demand(t, 10, 60)

	const callers = 32
	var wg sync.WaitGroup
	models := make([]model.Model, callers)
	errs := make([]error, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			models[i], errs[i] = cache.GetOrTrain(context.Background(), "SKU-1", s)
		}(i)
	}
	wg.Wait()

	if got := trainer.calls.Load(); got != 1 {
		t.Fatalf("Expected exactly 1 training, got %d", got)
	}
	for i := range models {
		if errs[i] != nil {
			t.Fatalf("Caller %d failed: %v", i, errs[i])
		}
		if models[i] != models[0] {
			t.Errorf("Caller %d observed a different model", i)
		}
	}
}

func TestGetOrTrain_DifferentProductsDoNotBlock(t *testing.T) {
	trainer := newCountingTrainer(0)
	cache := New(trainer, Options{})
	s := demand(t, 10, 30)

	if _, err := cache.GetOrTrain(context.Background(), "FAST", s); err != nil {
		t.Fatalf("GetOrTrain failed: %v", err)
	}

	// Hold the lock of another product as if it were training
	mu := cache.lock("SLOW")
	mu.Lock()
	defer mu.Unlock()

	done := make(chan struct{})
	go func() {
		_, _ = cache.GetOrTrain(context.Background(), "FAST", s)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Cached product blocked on another product's training")
	}
}

func TestInvalidate_Isolation(t *testing.T) {
	trainer := newCountingTrainer(0)
	backend := NewMemoryBackend(DefaultKeyPrefix)
	cache := New(trainer, Options{Backend: backend})
	ctx := context.Background()

	a, b := demand(t, 10, 30), demand(t, 20, 30)
	_, _ = cache.GetOrTrain(ctx, "A", a)
	modelB, _ := cache.GetOrTrain(ctx, "B", b)

	cache.Invalidate(ctx, "A")

	if _, ok := cache.Peek("A"); ok {
		t.Errorf("Expected A to be evicted locally")
	}
	if _, ok, _ := backend.Get(ctx, cache.Key("A")); ok {
		t.Errorf("Expected A to be evicted from the backend")
	}
	if _, ok, _ := backend.Get(ctx, cache.Key("B")); !ok {
		t.Errorf("Expected B to stay in the backend")
	}

	again, _ := cache.GetOrTrain(ctx, "B", b)
	if again != modelB {
		t.Errorf("Expected B to be served from the local tier")
	}
	if got := trainer.calls.Load(); got != 2 {
		t.Errorf("Expected 2 trainings, got %d", got)
	}
}

func TestGetOrTrain_StaleFingerprintRetrains(t *testing.T) {
	trainer := newCountingTrainer(0)
	cache := New(trainer, Options{})
	ctx := context.Background()

	first, _ := cache.GetOrTrain(ctx, "SKU", demand(t, 10, 30))
	second, _ := cache.GetOrTrain(ctx, "SKU", demand(t, 10, 31))

	if first == second {
		t.Fatalf("Expected a new model for a changed series")
	}
	if got := trainer.calls.Load(); got != 2 {
		t.Errorf("Expected 2 trainings, got %d", got)
	}
	if m, _ := cache.Peek("SKU"); m != second {
		t.Errorf("Expected the local tier to hold the new model")
	}
}

func TestGetOrTrain_BackendFailuresAreAbsorbed(t *testing.T) {
	trainer := newCountingTrainer(0)
	cache := New(trainer, Options{Backend: failingBackend{}})
	ctx := context.Background()

	m, err := cache.GetOrTrain(ctx, "SKU", demand(t, 10, 30))
	if err != nil || m == nil {
		t.Fatalf("Expected training to succeed despite backend failure, got %v", err)
	}
	cache.Invalidate(ctx, "SKU")
	cache.InvalidateAll(ctx)

	if cache.Stats().TierErrors == 0 {
		t.Errorf("Expected tier errors to be counted")
	}
}

func TestInvalidateAll_WaitsForTrainingInFlight(t *testing.T) {
	trainer := newCountingTrainer(100 * time.Millisecond)
	backend := NewMemoryBackend(DefaultKeyPrefix)
	cache := New(trainer, Options{Backend: backend})
	ctx := context.Background()
	s := demand(t, 10, 30)

	done := make(chan error, 1)
	go func() {
		_, err := cache.GetOrTrain(ctx, "SLOW", s)
		done <- err
	}()

	deadline := time.Now().Add(2 * time.Second)
	for trainer.calls.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("Training never started")
		}
		time.Sleep(time.Millisecond)
	}

	cache.InvalidateAll(ctx)
	if err := <-done; err != nil {
		t.Fatalf("GetOrTrain failed: %v", err)
	}

	if _, ok := cache.Peek("SLOW"); ok {
		t.Errorf("Expected no local model after InvalidateAll")
	}
	if _, ok, _ := backend.Get(ctx, cache.Key("SLOW")); ok {
		t.Errorf("Expected no distributed model after InvalidateAll")
	}
}

func TestGetOrTrain_PromotesFromTiers(t *testing.T) {
	ctx := context.Background()
	s := demand(t, 10, 30)

	snapshots, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}
	backend := NewMemoryBackend(DefaultKeyPrefix)

	// A first process trains and persists
	warm := New(newCountingTrainer(0), Options{Backend: backend, Snapshots: snapshots})
	trained, _ := warm.GetOrTrain(ctx, "SKU", s)

	// A second process shares the backend
	trainer := newCountingTrainer(0)
	shared := New(trainer, Options{Backend: backend, Snapshots: snapshots})
	m, _ := shared.GetOrTrain(ctx, "SKU", s)
	if trainer.calls.Load() != 0 || shared.Stats().BackendHits != 1 {
		t.Errorf("Expected a backend hit, got %+v", shared.Stats())
	}
	if m.Fingerprint() != trained.Fingerprint() {
		t.Errorf("Expected the shared model")
	}

	// A third process only has the snapshot
	_ = backend.Clear(ctx)
	cold := New(trainer, Options{Backend: backend, Snapshots: snapshots})
	if _, err := cold.GetOrTrain(ctx, "SKU", s); err != nil {
		t.Fatalf("GetOrTrain failed: %v", err)
	}
	if trainer.calls.Load() != 0 || cold.Stats().SnapshotHits != 1 {
		t.Errorf("Expected a snapshot hit, got %+v", cold.Stats())
	}
	if _, ok, _ := backend.Get(ctx, cold.Key("SKU")); !ok {
		t.Errorf("Expected the snapshot to be promoted into the backend")
	}
}

func TestGetOrTrain_TrainingErrorNotCached(t *testing.T) {
	trainer := newCountingTrainer(0)
	cache := New(trainer, Options{})
	zeros, _ := series.FromValues(time.Now(), make([]float64, 30))

	for i := 0; i < 2; i++ {
		if _, err := cache.GetOrTrain(context.Background(), "ZERO", zeros); err == nil {
			t.Fatalf("Expected training failure")
		}
	}
	if got := trainer.calls.Load(); got != 2 {
		t.Errorf("Expected failures to be retried, got %d trainings", got)
	}
}

func TestGetOrTrain_CancelledCallerStillCaches(t *testing.T) {
	trainer := newCountingTrainer(20 * time.Millisecond)
	backend := NewMemoryBackend(DefaultKeyPrefix)
	cache := New(trainer, Options{Backend: backend})
	s := demand(t, 10, 30)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := cache.GetOrTrain(ctx, "SKU", s); err != nil {
		t.Fatalf("GetOrTrain failed: %v", err)
	}
	if _, ok, _ := backend.Get(context.Background(), cache.Key("SKU")); !ok {
		t.Errorf("Expected the model to reach the backend despite cancellation")
	}
}

func TestMemoryBackend_Expiry(t *testing.T) {
	b := NewMemoryBackend("model:")
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return now }
	ctx := context.Background()

	_ = b.Set(ctx, "model:x", []byte("v"), time.Minute)
	_ = b.Set(ctx, "other", []byte("v"), 0)

	if _, ok, _ := b.Get(ctx, "model:x"); !ok {
		t.Errorf("Expected fresh entry")
	}
	now = now.Add(2 * time.Minute)
	if _, ok, _ := b.Get(ctx, "model:x"); ok {
		t.Errorf("Expected expired entry")
	}

	_ = b.Clear(ctx)
	if _, ok, _ := b.Get(ctx, "other"); !ok {
		t.Errorf("Expected keys outside the prefix to survive Clear")
	}
}
