package settings

import (
	"context"
	"strings"
)

// Resolver answers setting lookups from a Store, falling back to environment defaults
// when the store has no (or an empty) value.
type Resolver struct {
	store    Store
	defaults map[string]string
}

// NewResolver creates a resolver. defaults is keyed by setting key, not by variable name.
func NewResolver(store Store, defaults map[string]string) *Resolver {
	if defaults == nil {
		defaults = map[string]string{}
	}
	return &Resolver{store: store, defaults: defaults}
}

// Resolve returns the effective value of key.
func (r *Resolver) Resolve(ctx context.Context, key string) (string, error) {
	if r.store != nil {
		v, ok, err := r.store.Get(ctx, key)
		if err != nil {
			return "", err
		}
		if ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v), nil
		}
	}
	return r.Default(key), nil
}

// Default returns the environment-level default for key.
func (r *Resolver) Default(key string) string {
	return strings.TrimSpace(r.defaults[key])
}
