// Package engine implements the per-document transactional core: CAS writes
// with monotonic revisions, multi-step transactions under a per-"_id" lock,
// and the remote-apply path used by inbound replication.
package engine

import (
	"encoding/json"
	stderrors "errors"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/dreamware/docmesh/internal/document"
	"github.com/dreamware/docmesh/internal/keylock"
	"github.com/dreamware/docmesh/internal/revision"
	"github.com/dreamware/docmesh/internal/storage"
)

// ErrConflict is returned when a compare-and-swap precondition fails: the
// caller's claimed prior revision does not match the stored one.
var ErrConflict = stderrors.New("conflict: revision mismatch")

// Engine binds the key-value store to the per-key lock table. All document
// state transitions go through it.
type Engine struct {
	store storage.Store
	locks *keylock.Table
}

// New creates an engine over store with a fresh lock table.
func New(store storage.Store) *Engine {
	return &Engine{
		store: store,
		locks: keylock.New(),
	}
}

// load reads and decodes the document stored under id. A read miss is not a
// failure: it returns (nil, nil). Callers must hold the key's lock.
func (e *Engine) load(id string) (document.Document, error) {
	raw, err := e.store.Get(id)
	if stderrors.Is(err, storage.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var doc document.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, errors.Wrapf(err, "decode document %q", id)
	}
	return doc, nil
}

// save encodes doc and writes it under its "_id". Callers must hold the
// key's lock and have forced "_id" already.
func (e *Engine) save(doc document.Document) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return errors.Wrapf(err, "encode document %q", doc.ID())
	}
	return e.store.Put(doc.ID(), raw)
}

// Get returns the current document under id, or (nil, nil) when absent.
func (e *Engine) Get(id string) (document.Document, error) {
	release := e.locks.Lock(id)
	defer release()
	return e.load(id)
}

// Put performs a single-step CAS write. When input carries no "_id" a fresh
// UUIDv4 is assigned. The CAS precondition is the one every write in the
// system obeys: input's "_rev" must equal the stored revision, both absent
// for a new document. On success the stored document is the key-wise merge
// of the existing fields and input (input wins), with "_id" forced and a
// freshly allocated "_rev". Returns the final document.
func (e *Engine) Put(input document.Document) (document.Document, error) {
	id := input.ID()
	if id == "" {
		id = uuid.NewString()
	}

	var saved document.Document
	err := e.WithDocTransaction(id, func(tx *Txn) error {
		var err error
		saved, err = tx.Put(input)
		return err
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

// Delete removes the document under id. Deleting a missing document
// succeeds; no tombstone is kept.
func (e *Engine) Delete(id string) error {
	release := e.locks.Lock(id)
	defer release()
	return e.store.Delete(id)
}

// ListIDs returns up to limit document ids in store order.
func (e *Engine) ListIDs(limit int) ([]string, error) {
	return e.store.Keys(limit)
}

// WithDocTransaction runs body holding the lock for id, so every step the
// transaction handle performs is serialised against all other writes and
// remote-applies on the same document. The lock is released on every exit
// path, including panics inside body.
func (e *Engine) WithDocTransaction(id string, body func(tx *Txn) error) error {
	release := e.locks.Lock(id)
	defer release()
	return body(&Txn{engine: e, id: id})
}

// ApplyRemotePut applies a peer's put under the local lock. The sender's
// revision is authoritative: doc is stored verbatim (with "_id" forced) and
// no new revision is allocated. The stored revision must equal prevRev,
// both empty for a document the peer believes is new; a mismatch returns
// ErrConflict. A doc without "_rev" is rejected outright.
func (e *Engine) ApplyRemotePut(doc document.Document, prevRev string) error {
	if doc.Rev() == "" {
		return errors.New("remote put without revision")
	}
	id := doc.ID()
	if id == "" {
		return errors.New("remote put without id")
	}

	release := e.locks.Lock(id)
	defer release()

	current, err := e.load(id)
	if err != nil {
		return err
	}
	if currentRev(current) != prevRev {
		return ErrConflict
	}

	stored := doc.Clone()
	stored[document.FieldID] = id
	return e.save(stored)
}

// ApplyRemoteDelete applies a peer's delete under the local lock. The
// stored revision must equal prevRev (both empty permitted); a mismatch
// returns ErrConflict. Deleting an absent document is a no-op.
func (e *Engine) ApplyRemoteDelete(id, prevRev string) error {
	release := e.locks.Lock(id)
	defer release()

	current, err := e.load(id)
	if err != nil {
		return err
	}
	if currentRev(current) != prevRev {
		return ErrConflict
	}
	if current == nil {
		return nil
	}
	return e.store.Delete(id)
}

// currentRev maps an absent document to the empty revision.
func currentRev(doc document.Document) string {
	if doc == nil {
		return ""
	}
	return doc.Rev()
}

// Txn is the handle passed to a WithDocTransaction body. Its operations
// evaluate against the current stored state on each call, not a snapshot;
// the lock held for the transaction's lifetime is what keeps them coherent.
type Txn struct {
	engine *Engine
	id     string
}

// ID returns the document id the transaction owns.
func (tx *Txn) ID() string {
	return tx.id
}

// Get fetches the current state of the document, or (nil, nil) when absent.
func (tx *Txn) Get() (document.Document, error) {
	return tx.engine.load(tx.id)
}

// Put performs the CAS write described on Engine.Put against the
// transaction's id and returns the stored document.
func (tx *Txn) Put(input document.Document) (document.Document, error) {
	current, err := tx.engine.load(tx.id)
	if err != nil {
		return nil, err
	}
	if input.Rev() != currentRev(current) {
		return nil, ErrConflict
	}

	doc := document.Merge(current, input)
	doc[document.FieldID] = tx.id
	doc[document.FieldRev] = revision.Next(currentRev(current))
	if err := tx.engine.save(doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// Delete removes the document unconditionally. Removing an absent document
// succeeds.
func (tx *Txn) Delete() error {
	return tx.engine.store.Delete(tx.id)
}

// DeleteExpected removes the document after verifying the stored revision
// equals prevRev; an empty prevRev requires the document to be absent, in
// which case the delete is a no-op.
func (tx *Txn) DeleteExpected(prevRev string) error {
	current, err := tx.engine.load(tx.id)
	if err != nil {
		return err
	}
	if currentRev(current) != prevRev {
		return ErrConflict
	}
	if current == nil {
		return nil
	}
	return tx.engine.store.Delete(tx.id)
}

// ReplaceExact verifies the stored revision equals prevRev (both empty for
// a currently missing document) and then stores doc verbatim with "_id"
// forced. No revision is allocated: this is the rollback primitive, and a
// restored document keeps the byte identity of the revision it had before.
func (tx *Txn) ReplaceExact(doc document.Document, prevRev string) error {
	current, err := tx.engine.load(tx.id)
	if err != nil {
		return err
	}
	if currentRev(current) != prevRev {
		return ErrConflict
	}

	stored := doc.Clone()
	stored[document.FieldID] = tx.id
	return tx.engine.save(stored)
}
