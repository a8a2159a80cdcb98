package literal

import (
	"fmt"
	"go/token"
	"maps"
	"slices"
)

// Store is an element's data object. Every write that changes a value calls
// the bound change callback once, synchronously.
type Store struct {
	keys     []string
	values   map[string]any
	onChange func(key string)
}

// NewStore copies initial into a new unbound store, keys in sorted order.
func NewStore(initial map[string]any) (*Store, error) {
	s := &Store{values: map[string]any{}}
	for _, key := range slices.Sorted(maps.Keys(initial)) {
		if err := validateKey(key); err != nil {
			return nil, err
		}
		s.keys = append(s.keys, key)
		s.values[key] = initial[key]
	}
	return s, nil
}

func validateKey(key string) error {
	switch {
	case token.IsKeyword(key):
		return fmt.Errorf("%w: %q", ErrReservedKey, key)
	case key == "true" || key == "false" || key == "nil" || key == "iota":
		return fmt.Errorf("%w: %q", ErrReservedKey, key)
	case !token.IsIdentifier(key):
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}

func (s *Store) Get(key string) (any, bool) {
	v, ok := s.values[key]
	return v, ok
}

// Keys returns the keys in insertion order.
func (s *Store) Keys() []string {
	return slices.Clone(s.keys)
}

func (s *Store) Len() int { return len(s.keys) }

func (s *Store) Snapshot() map[string]any {
	return maps.Clone(s.values)
}

// Set writes value under key. Writing the value already held is a no-op.
func (s *Store) Set(key string, value any) error {
	if err := validateKey(key); err != nil {
		return err
	}

	old, ok := s.values[key]
	if sameValue(old, value) {
		return nil
	}

	if !ok {
		s.keys = append(s.keys, key)
	}
	s.values[key] = value

	if s.onChange != nil {
		s.onChange(key)
	}
	return nil
}

// SetMany applies values in sorted key order, one write at a time.
func (s *Store) SetMany(values map[string]any) error {
	for _, key := range slices.Sorted(maps.Keys(values)) {
		if err := s.Set(key, values[key]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) bound() bool { return s.onChange != nil }

func (s *Store) bind(fn func(key string)) error {
	if s.onChange != nil {
		return ErrStoreBound
	}
	s.onChange = fn
	return nil
}
