package demandlog

import (
	"fmt"
	"strings"
	"sync"

	"stockcast/internal/apperr"
	"stockcast/internal/series"
	"stockcast/internal/stats"

	"github.com/rs/zerolog/log"
)

// ChangeFunc is notified after a product's history changed.
type ChangeFunc func(productID string)

// Provider orchestrates demand ingestion and series retrieval on top of a Store.
type Provider struct {
	store   *Store
	dataDir string

	mu        sync.Mutex
	hydrated  bool
	listeners []ChangeFunc

	// writeMu serialises changes so a failed save can be rolled back.
	writeMu sync.Mutex
}

// NewProvider creates a provider persisting to dataDir. An empty dataDir keeps everything in memory.
func NewProvider(store *Store, dataDir string) *Provider {
	return &Provider{
		store:   store,
		dataDir: dataDir,
	}
}

// OnChange registers a callback invoked whenever a product's history is modified.
func (p *Provider) OnChange(fn ChangeFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners = append(p.listeners, fn)
}

// Hydrate loads every persisted product log once.
func (p *Provider) Hydrate() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.hydrated || p.dataDir == "" {
		p.hydrated = true
		return nil
	}

	if err := p.store.LoadAll(p.dataDir); err != nil {
		return fmt.Errorf("hydration failed: %w", err)
	}
	p.hydrated = true
	log.Info().Str("dir", p.dataDir).Int("products", len(p.store.Products())).Msg("Demand log hydrated")
	return nil
}

// Ingest appends records for a product, persists the log and notifies listeners when anything
// was added. When persisting fails the in-memory log is restored and nothing is reported as added.
func (p *Provider) Ingest(productID string, records []Record) (int, error) {
	const op = "demandlog.Ingest"

	if strings.TrimSpace(productID) == "" {
		return 0, apperr.Validation(op, "product_id", productID, "product id is required")
	}
	if err := p.Hydrate(); err != nil {
		return 0, err
	}

	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	existed := p.store.Has(productID)
	previous := p.store.Records(productID)

	added := p.store.Append(productID, records)
	if added == 0 {
		return 0, nil
	}

	if p.dataDir != "" {
		if err := p.store.Save(p.dataDir, productID); err != nil {
			if existed {
				p.store.Replace(productID, previous)
			} else {
				p.store.Clear(productID)
			}
			log.Error().Err(err).Str("product", productID).Msg("Ingest rolled back")
			return 0, err
		}
	}

	p.notify(productID)
	return added, nil
}

// Remove deletes a product's persisted log and forgets it.
func (p *Provider) Remove(productID string) error {
	if err := p.Hydrate(); err != nil {
		return err
	}

	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	if !p.store.Has(productID) {
		return apperr.NotFound("demandlog.Remove", productID)
	}
	if p.dataDir != "" {
		if err := Delete(p.dataDir, productID); err != nil {
			return err
		}
	}
	p.store.Clear(productID)
	p.notify(productID)
	return nil
}

// Series returns the validated daily series for a product.
func (p *Provider) Series(productID string) (series.Series, error) {
	if err := p.Hydrate(); err != nil {
		return series.Series{}, err
	}
	return p.store.Series(productID)
}

// AllSeries returns series for every product; invalid ones are reported separately.
func (p *Provider) AllSeries() (map[string]series.Series, map[string]error, error) {
	if err := p.Hydrate(); err != nil {
		return nil, nil, err
	}
	ok, failed := p.store.All()
	return ok, failed, nil
}

// Products returns all known product IDs.
func (p *Provider) Products() ([]string, error) {
	if err := p.Hydrate(); err != nil {
		return nil, err
	}
	return p.store.Products(), nil
}

// RecordCount returns the number of raw records for a product.
func (p *Provider) RecordCount(productID string) int {
	return p.store.Count(productID)
}

func (p *Provider) notify(productID string) {
	p.mu.Lock()
	listeners := make([]ChangeFunc, len(p.listeners))
	copy(listeners, p.listeners)
	p.mu.Unlock()

	for _, fn := range listeners {
		fn(productID)
	}
}

// ProductSummary describes the history held for one product.
type ProductSummary struct {
	ProductID string  `json:"product_id"`
	Records   int     `json:"records"`
	Days      int     `json:"days"`
	Start     string  `json:"start,omitempty"`
	End       string  `json:"end,omitempty"`
	DailyMean float64 `json:"daily_mean"`
	Trend     string  `json:"trend"`
	Error     string  `json:"error,omitempty"`
}

// Summaries describes every known product.
func (p *Provider) Summaries() ([]ProductSummary, error) {
	ids, err := p.Products()
	if err != nil {
		return nil, err
	}

	out := make([]ProductSummary, 0, len(ids))
	for _, id := range ids {
		sum := ProductSummary{ProductID: id, Records: p.store.Count(id)}
		ts, err := p.store.Series(id)
		if err != nil {
			sum.Error = err.Error()
			out = append(out, sum)
			continue
		}
		profile := ts.Profile()
		sum.Days = ts.Len()
		sum.DailyMean = stats.Round(profile.DailyMean, 2)
		sum.Trend = profile.Trend
		if ts.Len() > 0 {
			sum.Start = ts.Start().Format(series.DateLayout)
			sum.End = ts.End().Format(series.DateLayout)
		}
		out = append(out, sum)
	}
	return out, nil
}
