package store

import (
	"context"
	"encoding/json"
	"fmt"
)

// PutJSON serializes v as JSON and inserts it under (user, sid, kind).
func PutJSON[T any](ctx context.Context, s *Store, user, sid string, kind Kind, v T) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("store: marshal %s: %w", kind, err)
	}
	return s.Insert(ctx, user, sid, kind, data)
}

// GetJSON reads and deserializes the artifact at (user, sid, kind) into T.
// It returns ErrNotFound unchanged so callers can distinguish "absent" from
// other store failures.
func GetJSON[T any](ctx context.Context, s *Store, user, sid string, kind Kind) (T, error) {
	var zero T
	data, err := s.Get(ctx, user, sid, kind)
	if err != nil {
		return zero, err
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return zero, fmt.Errorf("store: unmarshal %s: %w", kind, err)
	}
	return v, nil
}
