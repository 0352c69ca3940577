package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// CodecVersion is bumped whenever a persisted parameter layout changes incompatibly.
const CodecVersion = 1

// Envelope is the persisted form of a trained model.
type Envelope struct {
	Kind        string          `json:"kind"`
	Version     int             `json:"version"`
	ProductID   string          `json:"product_id"`
	Fingerprint string          `json:"fingerprint"`
	TrainedAt   time.Time       `json:"trained_at"`
	Params      json.RawMessage `json:"params"`
}

// Encode serialises a model into its envelope.
func Encode(m Model) ([]byte, error) {
	var params any
	switch v := m.(type) {
	case *Decomposition:
		params = v.params
	default:
		return nil, fmt.Errorf("encode: unsupported model kind %q", m.Kind())
	}

	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("encode params: %w", err)
	}

	return json.Marshal(Envelope{
		Kind:        m.Kind(),
		Version:     CodecVersion,
		ProductID:   m.ProductID(),
		Fingerprint: m.Fingerprint(),
		TrainedAt:   m.TrainedAt(),
		Params:      raw,
	})
}

// Decode restores a model from its envelope. Unknown kinds and versions are rejected.
func Decode(data []byte) (Model, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Version != CodecVersion {
		return nil, fmt.Errorf("decode: unsupported version %d", env.Version)
	}

	switch env.Kind {
	case KindDecomposition:
		var p DecompositionParams
		if err := json.Unmarshal(env.Params, &p); err != nil {
			return nil, fmt.Errorf("decode params: %w", err)
		}
		if p.Points <= 0 || p.Confidence <= 0 || p.Confidence >= 1 {
			return nil, fmt.Errorf("decode: invalid decomposition parameters")
		}
		return &Decomposition{
			productID:   env.ProductID,
			fingerprint: env.Fingerprint,
			trainedAt:   env.TrainedAt,
			params:      p,
		}, nil
	default:
		return nil, fmt.Errorf("decode: unknown model kind %q", env.Kind)
	}
}
