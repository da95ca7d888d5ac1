// Package feed delivers ordered change records of the Primary Store to a consumer.
//
// Delivery is at least once: a record may be handed to the handler again after a
// restart or a redelivered batch, so consumers must be idempotent.
package feed

import (
	"context"

	"github.com/m-mizutani/omoide/pkg/model"
)

// Handler receives one batch of change records. Returning acknowledges the batch; a
// non-nil error stops the listener and is returned from Listen.
type Handler func(ctx context.Context, changes []*model.EntryChange) error

// Feed is a source of change records
type Feed interface {
	// Listen calls h for each batch until the source is exhausted or ctx is cancelled.
	// Cancellation is a normal shutdown and returns nil.
	Listen(ctx context.Context, h Handler) error
}

const DefaultBatchSize = 100
