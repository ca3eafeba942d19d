// Package ctxutil papers over nil contexts at package boundaries.
package ctxutil

import "context"

// Default substitutes context.Background for a nil ctx so exported entry
// points can be called without one.
func Default(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}
