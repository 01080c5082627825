// Package replication implements the push side of the mesh: the change
// record exchanged between peers and the client that fans a change out to
// every configured peer.
package replication

import (
	"github.com/pkg/errors"

	"github.com/dreamware/docmesh/internal/document"
)

// Operations a change record can carry.
const (
	OpPut = "put"
	OpDel = "del"
)

// Change describes one document mutation to a peer. PrevRev is the
// revision the sender observed before the mutation (absent for a create),
// and for puts Rev/Doc carry the resulting state. The receiver applies the
// change only if its own stored revision still equals PrevRev.
type Change struct {
	Op      string            `json:"op"`
	ID      string            `json:"_id"`
	PrevRev string            `json:"prevRev,omitempty"`
	Rev     string            `json:"rev,omitempty"`
	Doc     document.Document `json:"doc,omitempty"`
}

// Validate checks the structural invariants of a change record, the same
// ones the /replicate receiver enforces before touching the engine.
func (c *Change) Validate() error {
	if c.Op != OpPut && c.Op != OpDel {
		return errors.Errorf("unknown op %q", c.Op)
	}
	if c.ID == "" {
		return errors.New("missing _id")
	}
	if c.Op == OpDel {
		return nil
	}
	if c.Doc == nil {
		return errors.New("put without doc")
	}
	if c.Doc.ID() != c.ID {
		return errors.New("doc _id does not match change _id")
	}
	if c.Rev == "" || c.Doc.Rev() != c.Rev {
		return errors.New("doc _rev does not match change rev")
	}
	return nil
}
