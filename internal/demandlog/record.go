package demandlog

import (
	"fmt"
	"time"
)

// Record is a single raw demand observation for a product.
type Record struct {
	// Ref is an optional upstream identifier (order line, invoice row). Records that carry a
	// Ref are deduplicated on it.
	Ref string `json:"ref,omitempty"`
	// Date is the day the demand occurred (Unix seconds).
	Date int64 `json:"ts"`
	// Quantity is the demanded amount. Nil marks a missing value that is dropped at series
	// construction.
	Quantity *float64 `json:"qty"`
	// Source names the ingestion channel (e.g. "csv", "mockgen").
	Source string `json:"source,omitempty"`
}

// NewRecord builds a record for the given day and quantity.
func NewRecord(date time.Time, qty float64) Record {
	q := qty
	return Record{Date: date.UTC().Unix(), Quantity: &q}
}

// Time returns the record date.
func (r Record) Time() time.Time {
	return time.Unix(r.Date, 0).UTC()
}

// identity is used for deduplication of records carrying an upstream reference.
func (r Record) identity() string {
	if r.Ref == "" {
		return ""
	}
	return fmt.Sprintf("%s|%d", r.Ref, r.Date)
}
