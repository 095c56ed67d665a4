package events

import (
	"context"
	"log/slog"
)

// NopPublisher logs events instead of delivering them, for deployments that
// run without a broker. The events carry no secrets (generation numbers and
// timestamps, never PINs), so logging them whole is safe.
type NopPublisher struct {
	Log *slog.Logger
}

func (n NopPublisher) PublishStartAuthorized(ctx context.Context, ev StartAuthorized) error {
	n.Log.InfoContext(ctx, "event not published (no broker configured)",
		"queue", QueueStartAuthorized, "trip_id", ev.TripID, "generation", ev.Generation)
	return nil
}

func (n NopPublisher) PublishStartCodeRenewed(ctx context.Context, ev StartCodeRenewed) error {
	n.Log.InfoContext(ctx, "event not published (no broker configured)",
		"queue", QueueStartCodeRenewed, "trip_id", ev.TripID, "generation", ev.Generation)
	return nil
}
