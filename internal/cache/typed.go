package cache

import (
	"context"
	"encoding/json"
	"fmt"
)

// GetOrCreateJSON is GetOrCreate for JSON-encodable values. A cached payload
// that no longer decodes into T is dropped and recomputed once through
// GetOrCreate, so the fresh value is stored and shared with concurrent callers.
func GetOrCreateJSON[T any](
	ctx context.Context, s *Store, key string, opts Options, factory func(ctx context.Context) (T, error),
) (T, bool, error) {
	var zero T
	encode := func(ctx context.Context) ([]byte, error) {
		v, err := factory(ctx)
		if err != nil {
			return nil, err
		}
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode cache value: %w", err)
		}
		return data, nil
	}

	for attempt := 0; ; attempt++ {
		raw, hit, err := s.GetOrCreate(ctx, key, encode, opts)
		if err != nil {
			return zero, false, err
		}
		var out T
		derr := json.Unmarshal(raw, &out)
		if derr == nil {
			return out, hit, nil
		}
		if attempt > 0 {
			return zero, false, fmt.Errorf("decode cache value: %w", derr)
		}
		s.Remove(ctx, key)
	}
}

// GetJSON reads and decodes a cached value.
func GetJSON[T any](ctx context.Context, s *Store, key string) (T, bool) {
	var out T
	raw, ok := s.Get(ctx, key)
	if !ok {
		return out, false
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, false
	}
	return out, true
}

// SetJSON encodes and stores a value.
func SetJSON[T any](ctx context.Context, s *Store, key string, v T, opts Options) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode cache value: %w", err)
	}
	s.Set(ctx, key, data, opts)
	return nil
}
