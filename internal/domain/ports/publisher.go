package ports

import (
	"context"

	"github.com/easyspace-ai/easygrid/pkg/models"
)

// OpPublisher is the server-side producer half of the OT channel, consumed
// by the metadata and record services to broadcast writes.
type OpPublisher interface {
	// PublishOp applies ops to (collection, docId) and broadcasts the
	// resulting bundle. The server side is authoritative; no version
	// argument is taken.
	PublishOp(ctx context.Context, collection, docID string, ops []models.OTOp) error
}
