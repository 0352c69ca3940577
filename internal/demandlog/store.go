package demandlog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"stockcast/internal/apperr"
	"stockcast/internal/series"

	"github.com/rs/zerolog/log"
)

const fileSuffix = ".jsonl"

// fileName escapes the product ID so it always names a single file inside the demand dir.
func fileName(productID string) string {
	return url.PathEscape(productID) + fileSuffix
}

// Store provides thread-safe, chronological storage of demand records partitioned by product.
type Store struct {
	mu   sync.RWMutex
	logs map[string][]Record
}

// NewStore creates a new empty Store.
func NewStore() *Store {
	return &Store{
		logs: make(map[string][]Record),
	}
}

// Append adds records to a product's log, keeping chronological order and dropping
// duplicates by reference. It returns the number of records actually added.
func (s *Store) Append(productID string, records []Record) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	logData := s.logs[productID]

	// 1. Index existing references
	existing := make(map[string]bool)
	for _, r := range logData {
		if id := r.identity(); id != "" {
			existing[id] = true
		}
	}

	// 2. Filter new records
	added := 0
	for _, r := range records {
		id := r.identity()
		if id != "" {
			if existing[id] {
				continue
			}
			existing[id] = true
		}
		logData = append(logData, r)
		added++
	}

	if added == 0 {
		return 0
	}

	// 3. Stable sort by date so same-day records keep ingestion order
	sort.SliceStable(logData, func(i, j int) bool {
		return logData[i].Date < logData[j].Date
	})

	s.logs[productID] = logData
	return added
}

// Replace swaps the whole log of a product.
func (s *Store) Replace(productID string, records []Record) {
	cp := make([]Record, len(records))
	copy(cp, records)
	sort.SliceStable(cp, func(i, j int) bool {
		return cp[i].Date < cp[j].Date
	})

	s.mu.Lock()
	s.logs[productID] = cp
	s.mu.Unlock()
}

// Has reports whether a product has a log in memory.
func (s *Store) Has(productID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.logs[productID]
	return ok
}

// Clear drops all records of a product from memory.
func (s *Store) Clear(productID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.logs, productID)
}

// Products returns all known product IDs in lexical order.
func (s *Store) Products() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.logs))
	for id := range s.logs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Count returns the number of raw records held for a product.
func (s *Store) Count(productID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.logs[productID])
}

// LatestDate returns the date of the most recent record for a product.
func (s *Store) LatestDate(productID string) time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	logData := s.logs[productID]
	if len(logData) == 0 {
		return time.Time{}
	}
	return logData[len(logData)-1].Time()
}

// Records returns a copy of a product's raw records.
func (s *Store) Records(productID string) []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	logData := s.logs[productID]
	out := make([]Record, len(logData))
	copy(out, logData)
	return out
}

// Series builds the validated daily series for a product. Unknown products yield a NotFound
// error, which callers must keep distinct from insufficient history.
func (s *Store) Series(productID string) (series.Series, error) {
	s.mu.RLock()
	logData, ok := s.logs[productID]
	records := make([]series.Record, len(logData))
	for i, r := range logData {
		records[i] = series.Record{Date: r.Time(), Quantity: r.Quantity}
	}
	s.mu.RUnlock()

	if !ok {
		return series.Series{}, apperr.NotFound("demandlog.Series", productID)
	}

	ts, err := series.FromRecords(records)
	if err != nil {
		return series.Series{}, err
	}
	if ts.Dropped() > 0 {
		log.Debug().Str("product", productID).Int("dropped", ts.Dropped()).Msg("Dropped records with missing quantity")
	}
	return ts, nil
}

// All builds series for every known product. Products whose records fail validation are
// reported in the returned error map and left out of the series map.
func (s *Store) All() (map[string]series.Series, map[string]error) {
	out := make(map[string]series.Series)
	failed := make(map[string]error)
	for _, id := range s.Products() {
		ts, err := s.Series(id)
		if err != nil {
			failed[id] = err
			continue
		}
		out[id] = ts
	}
	return out, failed
}

// Load reads records from a JSONL file for the given product.
func (s *Store) Load(dir string, productID string) error {
	path := filepath.Join(dir, fileName(productID))
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // No history yet, not an error
		}
		return fmt.Errorf("failed to open demand log: %w", err)
	}
	defer file.Close()

	var records []Record
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var r Record
		if err := json.Unmarshal(scanner.Bytes(), &r); err != nil {
			log.Warn().Err(err).Str("product", productID).Msg("Skipping invalid JSON line in demand log")
			continue
		}
		records = append(records, r)
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading demand log: %w", err)
	}

	log.Debug().Str("product", productID).Int("count", len(records)).Msg("Loaded demand records")
	s.Append(productID, records)
	return nil
}

// LoadAll reads every product log found in dir.
func (s *Store) LoadAll(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to list demand dir: %w", err)
	}

	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		productID, err := url.PathUnescape(strings.TrimSuffix(name, fileSuffix))
		if err != nil {
			log.Warn().Err(err).Str("file", name).Msg("Skipping demand log with invalid name")
			continue
		}
		if err := s.Load(dir, productID); err != nil {
			return err
		}
	}
	return nil
}

// Save persists a product's records to a JSONL file.
func (s *Store) Save(dir string, productID string) error {
	s.mu.RLock()
	logData := make([]Record, len(s.logs[productID]))
	copy(logData, s.logs[productID])
	s.mu.RUnlock()

	if len(logData) == 0 {
		return nil
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create demand dir: %w", err)
	}

	path := filepath.Join(dir, fileName(productID))
	tmpPath := path + ".tmp"

	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("failed to create temp demand file: %w", err)
	}

	writer := bufio.NewWriter(file)
	encoder := json.NewEncoder(writer)

	for _, r := range logData {
		if err := encoder.Encode(r); err != nil {
			file.Close()
			os.Remove(tmpPath)
			return fmt.Errorf("failed to encode record: %w", err)
		}
	}

	if err := writer.Flush(); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to flush writer: %w", err)
	}

	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close file: %w", err)
	}

	// Atomic rename
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename demand file: %w", err)
	}

	log.Info().Str("product", productID).Int("count", len(logData)).Msg("Demand log saved")
	return nil
}

// Delete removes a product's file from dir.
func Delete(dir string, productID string) error {
	path := filepath.Join(dir, fileName(productID))
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete demand log: %w", err)
	}
	return nil
}
