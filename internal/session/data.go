package session

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// GetTyped reads a slot and decodes it into T. ok=false means the slot is
// empty; session-not-found surfaces as errors.ErrInvalidSession from the store.
func GetTyped[T any](ctx context.Context, s Store, id uuid.UUID, slot string) (value T, ok bool, err error) {
	raw, err := s.GetData(ctx, id, slot)
	if err != nil {
		return value, false, err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return value, false, nil
	}
	if err := json.Unmarshal(raw, &value); err != nil {
		return value, false, fmt.Errorf("failed to decode session slot %q: %w", slot, err)
	}
	return value, true, nil
}

// SetTyped encodes value into a slot and returns the previous decoded value,
// if the slot held one.
func SetTyped[T any](ctx context.Context, s Store, id uuid.UUID, slot string, value T) (prev *T, err error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("failed to encode session slot %q: %w", slot, err)
	}

	prevRaw, err := s.SetData(ctx, id, slot, raw)
	if err != nil {
		return nil, err
	}
	if len(prevRaw) == 0 || string(prevRaw) == "null" {
		return nil, nil
	}

	prev = new(T)
	if err := json.Unmarshal(prevRaw, prev); err != nil {
		return nil, fmt.Errorf("failed to decode previous slot %q: %w", slot, err)
	}
	return prev, nil
}
