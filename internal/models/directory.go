package models

import "context"

// OrderDirectory answers whether an order actually exists, so locks are not
// handed out for identifiers nothing in the shop ever created.
type OrderDirectory interface {
	OrderExists(ctx context.Context, kind ResourceKind, resourceID string) (bool, error)
}
