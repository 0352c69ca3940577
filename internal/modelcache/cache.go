// Package modelcache serves trained models per product from a process-local map, an optional
// distributed backend and an optional durable snapshot store, training at most once per
// product at a time.
package modelcache

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"stockcast/internal/apperr"
	"stockcast/internal/model"
	"stockcast/internal/series"

	"github.com/rs/zerolog/log"
)

// DefaultKeyPrefix namespaces models in the distributed backend.
const DefaultKeyPrefix = "model:"

// DefaultTTL bounds the lifetime of distributed entries.
const DefaultTTL = 24 * time.Hour

// Options configures the optional tiers. Nil tiers are skipped.
type Options struct {
	Backend   Backend
	Snapshots SnapshotStore
	TTL       time.Duration
	KeyPrefix string
}

// Stats counts where models were served from.
type Stats struct {
	LocalHits    int64 `json:"local_hits"`
	BackendHits  int64 `json:"backend_hits"`
	SnapshotHits int64 `json:"snapshot_hits"`
	Trainings    int64 `json:"trainings"`
	TierErrors   int64 `json:"tier_errors"`
}

// Cache maps product IDs to trained models.
type Cache struct {
	trainer   model.Trainer
	backend   Backend
	snapshots SnapshotStore
	ttl       time.Duration
	prefix    string

	local sync.Map // product ID -> model.Model
	locks sync.Map // product ID -> *sync.Mutex

	localHits    atomic.Int64
	backendHits  atomic.Int64
	snapshotHits atomic.Int64
	trainings    atomic.Int64
	tierErrors   atomic.Int64
}

// New creates a cache training misses with trainer.
func New(trainer model.Trainer, opts Options) *Cache {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = DefaultKeyPrefix
	}
	return &Cache{
		trainer:   trainer,
		backend:   opts.Backend,
		snapshots: opts.Snapshots,
		ttl:       opts.TTL,
		prefix:    opts.KeyPrefix,
	}
}

// Trainer returns the trainer used on a miss.
func (c *Cache) Trainer() model.Trainer { return c.trainer }

// Key returns the distributed cache key of a product.
func (c *Cache) Key(productID string) string {
	return c.prefix + productID
}

// GetOrTrain returns the model for the product trained on exactly s. A cached model trained on
// a different series is treated as a miss and replaced in every tier.
//
// Training is not cancelled with ctx: a caller that gives up leaves the model to be cached for
// the next one.
func (c *Cache) GetOrTrain(ctx context.Context, productID string, s series.Series) (model.Model, error) {
	fingerprint := s.Fingerprint()

	// 1. Fast path, no locking
	if m, ok := c.lookupLocal(productID, fingerprint); ok {
		c.localHits.Add(1)
		return m, nil
	}

	// 2. Per-product critical section
	mu := c.lock(productID)
	mu.Lock()
	defer mu.Unlock()

	// 3. Another caller may have finished while we waited
	if m, ok := c.lookupLocal(productID, fingerprint); ok {
		c.localHits.Add(1)
		return m, nil
	}

	ctx = context.WithoutCancel(ctx)

	// 4. Distributed tier
	if m, ok := c.fromBackend(ctx, productID, fingerprint); ok {
		c.backendHits.Add(1)
		c.local.Store(productID, m)
		return m, nil
	}

	// 5. Durable tier, promoted on success
	if m, ok := c.fromSnapshot(ctx, productID, fingerprint); ok {
		c.snapshotHits.Add(1)
		c.local.Store(productID, m)
		c.promote(ctx, m)
		return m, nil
	}

	// 6. Train
	log.Info().Str("product", productID).Int("points", s.Len()).Msg("Training model")
	start := time.Now()
	m, err := c.trainer.Train(productID, s)
	if err != nil {
		return nil, err
	}
	c.trainings.Add(1)
	log.Debug().Str("product", productID).Dur("elapsed", time.Since(start)).Msg("Model trained")

	c.local.Store(productID, m)
	c.promote(ctx, m)
	c.persist(ctx, m)
	return m, nil
}

// Peek returns the process-local model for a product regardless of the series it was trained on.
func (c *Cache) Peek(productID string) (model.Model, bool) {
	v, ok := c.local.Load(productID)
	if !ok {
		return nil, false
	}
	return v.(model.Model), true
}

// Invalidate removes a product's model from every tier. Other products are untouched.
func (c *Cache) Invalidate(ctx context.Context, productID string) {
	mu := c.lock(productID)
	mu.Lock()
	defer mu.Unlock()

	ctx = context.WithoutCancel(ctx)
	c.local.Delete(productID)

	if c.backend != nil {
		if err := c.backend.Delete(ctx, c.Key(productID)); err != nil {
			c.absorb("backend.delete", productID, err)
		}
	}
	if c.snapshots != nil {
		if err := c.snapshots.Delete(ctx, productID); err != nil {
			c.absorb("snapshot.delete", productID, err)
		}
	}
	log.Info().Str("product", productID).Msg("Model invalidated")
}

// InvalidateAll empties every tier. Trainings already in flight finish first, so none of them
// writes a model back after the clear.
func (c *Cache) InvalidateAll(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)

	// Lock every known product in a fixed order
	var ids []string
	c.locks.Range(func(key, _ any) bool {
		ids = append(ids, key.(string))
		return true
	})
	sort.Strings(ids)
	for _, id := range ids {
		mu := c.lock(id)
		mu.Lock()
		defer mu.Unlock()
	}

	c.local.Range(func(key, _ any) bool {
		c.local.Delete(key)
		return true
	})

	if c.backend != nil {
		if err := c.backend.Clear(ctx); err != nil {
			c.absorb("backend.clear", "", err)
		}
	}
	if c.snapshots != nil {
		if err := c.snapshots.Clear(ctx); err != nil {
			c.absorb("snapshot.clear", "", err)
		}
	}
	log.Info().Msg("All models invalidated")
}

// Stats returns a snapshot of the hit counters.
func (c *Cache) Stats() Stats {
	return Stats{
		LocalHits:    c.localHits.Load(),
		BackendHits:  c.backendHits.Load(),
		SnapshotHits: c.snapshotHits.Load(),
		Trainings:    c.trainings.Load(),
		TierErrors:   c.tierErrors.Load(),
	}
}

// Close releases the optional tiers.
func (c *Cache) Close() error {
	var errs []error
	if c.backend != nil {
		errs = append(errs, c.backend.Close())
	}
	if c.snapshots != nil {
		errs = append(errs, c.snapshots.Close())
	}
	return errors.Join(errs...)
}

func (c *Cache) lock(productID string) *sync.Mutex {
	if mu, ok := c.locks.Load(productID); ok {
		return mu.(*sync.Mutex)
	}
	mu, _ := c.locks.LoadOrStore(productID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

func (c *Cache) lookupLocal(productID, fingerprint string) (model.Model, bool) {
	v, ok := c.local.Load(productID)
	if !ok {
		return nil, false
	}
	m := v.(model.Model)
	return m, m.Fingerprint() == fingerprint
}

func (c *Cache) fromBackend(ctx context.Context, productID, fingerprint string) (model.Model, bool) {
	if c.backend == nil {
		return nil, false
	}
	raw, ok, err := c.backend.Get(ctx, c.Key(productID))
	if err != nil {
		c.absorb("backend.get", productID, err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	m, err := model.Decode(raw)
	if err != nil {
		c.absorb("backend.decode", productID, err)
		return nil, false
	}
	if m.Fingerprint() != fingerprint {
		log.Debug().Str("product", productID).Msg("Distributed model is stale")
		return nil, false
	}
	return m, true
}

func (c *Cache) fromSnapshot(ctx context.Context, productID, fingerprint string) (model.Model, bool) {
	if c.snapshots == nil {
		return nil, false
	}
	exists, err := c.snapshots.Exists(ctx, productID)
	if err != nil {
		c.absorb("snapshot.exists", productID, err)
		return nil, false
	}
	if !exists {
		return nil, false
	}
	m, err := c.snapshots.Load(ctx, productID)
	if err != nil {
		c.absorb("snapshot.load", productID, err)
		return nil, false
	}
	if m.Fingerprint() != fingerprint {
		log.Debug().Str("product", productID).Msg("Snapshot model is stale")
		return nil, false
	}
	return m, true
}

func (c *Cache) promote(ctx context.Context, m model.Model) {
	if c.backend == nil {
		return
	}
	raw, err := model.Encode(m)
	if err != nil {
		c.absorb("backend.encode", m.ProductID(), err)
		return
	}
	if err := c.backend.Set(ctx, c.Key(m.ProductID()), raw, c.ttl); err != nil {
		c.absorb("backend.set", m.ProductID(), err)
	}
}

func (c *Cache) persist(ctx context.Context, m model.Model) {
	if c.snapshots == nil {
		return
	}
	if err := c.snapshots.Save(ctx, m.ProductID(), m); err != nil {
		c.absorb("snapshot.save", m.ProductID(), err)
	}
}

// absorb logs a tier failure; tier failures never reach callers.
func (c *Cache) absorb(op, productID string, err error) {
	c.tierErrors.Add(1)
	cerr := apperr.Cache("modelcache."+op, err)
	log.Warn().Err(cerr).Str("product", productID).Msg("Model cache tier unavailable, continuing")
}
