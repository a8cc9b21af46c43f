package controller

import (
	"context"
	"sync/atomic"
)

// Owner identifies the caller which opened a stream. Streams opened by the
// owner of a synchronization are not waited for.
type Owner uint64

// Anonymous is the owner of contexts without an owner token. It is never
// considered the owner of any stream.
const Anonymous Owner = 0

type ownerKey struct{}

var lastOwner atomic.Uint64

// WithOwner returns a copy of ctx carrying a new unique owner token.
func WithOwner(ctx context.Context) context.Context {
	return context.WithValue(ctx, ownerKey{}, Owner(lastOwner.Add(1)))
}

// OwnerOf returns the owner token of ctx, [Anonymous] if there is none.
func OwnerOf(ctx context.Context) Owner {
	if o, ok := ctx.Value(ownerKey{}).(Owner); ok {
		return o
	}

	return Anonymous
}

// owns reports whether the owner of ctx is o.
func owns(ctx context.Context, o Owner) bool {
	return o != Anonymous && OwnerOf(ctx) == o
}
