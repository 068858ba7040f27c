// Package middleware wraps a ports.ResponseStore with cross-cutting
// behavior such as encryption at rest and PII masking.
package middleware

import "github.com/Veolinan/triage/pkg/ports"

// Middleware allows wrapping a ResponseStore to add behavior.
type Middleware func(ports.ResponseStore) ports.ResponseStore

// Chain applies middlewares so that the first one is outermost.
func Chain(store ports.ResponseStore, mws ...Middleware) ports.ResponseStore {
	for i := len(mws) - 1; i >= 0; i-- {
		store = mws[i](store)
	}
	return store
}
