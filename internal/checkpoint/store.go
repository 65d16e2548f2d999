// Package checkpoint persists resumable task snapshots.
//
// A checkpoint is the opaque state a task saves before pausing for human
// input, keyed by (session id, exchange id). The content is owned by the
// step function; stores only move bytes. Saving overwrites any previous
// checkpoint under the same key, and Take implements the read-exactly-once
// resume semantics: it returns the checkpoint and removes it atomically
// from the caller's perspective.
package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNotFound is returned when no checkpoint exists under the given key.
var ErrNotFound = errors.New("checkpoint not found")

// Store persists checkpoints keyed by (session id, exchange id).
type Store interface {
	// Save writes the checkpoint, overwriting any previous one under
	// the same key.
	Save(ctx context.Context, sessionID, exchangeID string, cp map[string]any) error

	// Load reads the checkpoint without consuming it.
	Load(ctx context.Context, sessionID, exchangeID string) (map[string]any, error)

	// Take reads the checkpoint and removes it. A checkpoint is read
	// back exactly once, on resume.
	Take(ctx context.Context, sessionID, exchangeID string) (map[string]any, error)

	// Delete removes the checkpoint if present. Deleting an absent key
	// is not an error.
	Delete(ctx context.Context, sessionID, exchangeID string) error
}

// storageKey is the canonical flat key for backends that key by a single
// string (redis, in-memory).
func storageKey(sessionID, exchangeID string) string {
	return sessionID + "/" + exchangeID
}

func encode(cp map[string]any) ([]byte, error) {
	if cp == nil {
		cp = map[string]any{}
	}
	data, err := json.Marshal(cp)
	if err != nil {
		return nil, fmt.Errorf("encode checkpoint: %w", err)
	}
	return data, nil
}

func decode(data []byte) (map[string]any, error) {
	var cp map[string]any
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("decode checkpoint: %w", err)
	}
	return cp, nil
}
