package services

import (
	"context"
	"fmt"
	"log"
	"sync"

	apperrors "github.com/easyspace-ai/easygrid/pkg/errors"
	"github.com/easyspace-ai/easygrid/pkg/models"
)

// subscriberBuffer is the per-subscriber channel depth. A subscriber that
// falls this far behind loses messages and is expected to resync from the
// snapshot.
const subscriberBuffer = 64

type otDoc struct {
	mu      sync.Mutex
	version int64
	data    map[string]any
	subs    map[int]chan models.OTMessage
	nextSub int
}

// OTChannel is the in-process operational-transform hub. Every document is
// identified by (collection, docId); ops apply under a per-document lock so
// subscribers observe one total order per document.
type OTChannel struct {
	mu   sync.RWMutex
	docs map[string]*otDoc
}

// NewOTChannel creates a new OTChannel
func NewOTChannel() *OTChannel {
	return &OTChannel{docs: make(map[string]*otDoc)}
}

func docKey(collection, docID string) string {
	return collection + "/" + docID
}

func (c *OTChannel) doc(collection, docID string, create bool) *otDoc {
	key := docKey(collection, docID)
	c.mu.RLock()
	d, ok := c.docs[key]
	c.mu.RUnlock()
	if ok || !create {
		return d
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if d, ok := c.docs[key]; ok {
		return d
	}
	d = &otDoc{
		version: 0,
		data:    make(map[string]any),
		subs:    make(map[int]chan models.OTMessage),
	}
	c.docs[key] = d
	return d
}

// Seed installs a document snapshot, typically loaded from storage on first
// subscribe. Seeding an already-seeded document at a lower version is a
// no-op so late loads cannot roll the channel back.
func (c *OTChannel) Seed(collection, docID string, version int64, data map[string]any) {
	d := c.doc(collection, docID, true)
	d.mu.Lock()
	defer d.mu.Unlock()
	if version <= d.version && d.version > 0 {
		return
	}
	d.version = version
	d.data = cloneDocData(data)
}

// Snapshot returns the current document state.
func (c *OTChannel) Snapshot(collection, docID string) (models.OTSnapshot, bool) {
	d := c.doc(collection, docID, false)
	if d == nil {
		return models.OTSnapshot{}, false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return models.OTSnapshot{V: d.version, Data: cloneDocData(d.data)}, true
}

// Subscribe registers for a document's op stream. The returned cancel
// function must be called exactly once; pending messages are dropped.
func (c *OTChannel) Subscribe(ctx context.Context, collection, docID string) (<-chan models.OTMessage, func()) {
	d := c.doc(collection, docID, true)
	d.mu.Lock()
	id := d.nextSub
	d.nextSub++
	ch := make(chan models.OTMessage, subscriberBuffer)
	d.subs[id] = ch
	d.mu.Unlock()

	cancel := func() {
		d.mu.Lock()
		if _, ok := d.subs[id]; ok {
			delete(d.subs, id)
			close(ch)
		}
		d.mu.Unlock()
	}
	return ch, cancel
}

// SubmitOp applies a client op bundle. baseVersion must equal the current
// document version; on mismatch the conflict carries the current version so
// the client can rebase. A bundle below the current version is a duplicate
// delivery and is rejected without applying anything.
func (c *OTChannel) SubmitOp(ctx context.Context, collection, docID string, baseVersion int64, ops []models.OTOp) (int64, error) {
	if len(ops) == 0 {
		return 0, apperrors.NewValidationError("ops", "empty op bundle")
	}
	d := c.doc(collection, docID, true)
	d.mu.Lock()
	defer d.mu.Unlock()

	if baseVersion < d.version {
		// duplicate or stale resend: same version already applied
		log.Printf("🔁 Duplicate op bundle on %s/%s at v%d (current v%d)",
			collection, docID, baseVersion, d.version)
		return d.version, apperrors.NewVersionConflictError(docID, baseVersion, d.version)
	}
	if baseVersion > d.version {
		return 0, apperrors.NewVersionConflictError(docID, baseVersion, d.version)
	}
	c.applyLocked(d, collection, docID, ops)
	return d.version, nil
}

// PublishOp applies a server-originated op bundle. The server side is
// authoritative; no version argument is taken. Implements ports.OpPublisher.
func (c *OTChannel) PublishOp(ctx context.Context, collection, docID string, ops []models.OTOp) error {
	if len(ops) == 0 {
		return nil
	}
	d := c.doc(collection, docID, true)
	d.mu.Lock()
	defer d.mu.Unlock()
	c.applyLocked(d, collection, docID, ops)
	return nil
}

// applyLocked mutates the snapshot, bumps the version and fans out. Caller
// holds d.mu.
func (c *OTChannel) applyLocked(d *otDoc, collection, docID string, ops []models.OTOp) {
	for _, op := range ops {
		applyOp(d.data, op)
	}
	d.version++

	msg := models.OTMessage{Collection: collection, DocID: docID, V: d.version, Ops: ops}
	for id, ch := range d.subs {
		select {
		case ch <- msg:
		default:
			log.Printf("⚠️ OT subscriber %d on %s/%s is lagging, dropping message",
				id, collection, docID)
		}
	}
}

// Drop removes a document and closes its subscribers, used when the backing
// record or field is deleted.
func (c *OTChannel) Drop(collection, docID string) {
	key := docKey(collection, docID)
	c.mu.Lock()
	d, ok := c.docs[key]
	if ok {
		delete(c.docs, key)
	}
	c.mu.Unlock()
	if !ok {
		return
	}
	d.mu.Lock()
	for id, ch := range d.subs {
		delete(d.subs, id)
		close(ch)
	}
	d.mu.Unlock()
}

// applyOp walks op.P into the document and applies insert/delete. Unknown
// path shapes are ignored rather than corrupting the snapshot.
func applyOp(doc map[string]any, op models.OTOp) {
	if len(op.P) == 0 {
		return
	}
	container := doc
	for i := 0; i < len(op.P)-1; i++ {
		seg, ok := op.P[i].(string)
		if !ok {
			return
		}
		child, ok := container[seg].(map[string]any)
		if !ok {
			if op.OI == nil {
				return
			}
			child = make(map[string]any)
			container[seg] = child
		}
		container = child
	}
	leaf, ok := op.P[len(op.P)-1].(string)
	if !ok {
		return
	}
	if op.OI != nil {
		container[leaf] = op.OI
	} else {
		delete(container, leaf)
	}
}

func cloneDocData(data map[string]any) map[string]any {
	clone := make(map[string]any, len(data))
	for k, v := range data {
		if nested, ok := v.(map[string]any); ok {
			clone[k] = cloneDocData(nested)
			continue
		}
		clone[k] = v
	}
	return clone
}

// String reports channel occupancy for debug logs.
func (c *OTChannel) String() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return fmt.Sprintf("OTChannel(%d docs)", len(c.docs))
}
