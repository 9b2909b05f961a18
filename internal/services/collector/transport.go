package collector

import (
	"context"

	"streamview/telemetry/internal/shared"
)

// Transport delivers one captured batch to a remote sink. The session
// manager treats any returned error as full-batch failure and re-queues the
// batch; there is no partial acknowledgment.
//
// immediate marks an unload-time send: implementations must detach from the
// caller's lifecycle so delivery can outlive the manager's teardown, at the
// cost of a shorter deadline.
type Transport interface {
	SendBatch(ctx context.Context, payload *shared.BatchPayload, immediate bool) error
}

var _ Transport = (*Client)(nil)
