// Package snsctx carries per-command settings through the context passed to bus backends.
package snsctx

import "context"

type verboseKey struct{}

// IsVerbose reports whether backends should dump raw transfers.
func IsVerbose(ctx context.Context) bool {
	val, ok := ctx.Value(verboseKey{}).(bool)
	return ok && val
}

func SetVerbose(ctx context.Context, value bool) context.Context {
	return context.WithValue(ctx, verboseKey{}, value)
}
