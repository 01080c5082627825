package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/dreamware/docmesh/internal/document"
	"github.com/dreamware/docmesh/internal/engine"
	"github.com/dreamware/docmesh/internal/replication"
)

// errPeerConflict marks a write the local node applied but a peer
// rejected; by the time it surfaces the local state has been rolled back.
var errPeerConflict = errors.New("conflict: rejected by peer")

// handleList returns up to 1000 document ids in store order.
//
// GET /api/docs?limit=N -> 200 {"ids":[...]}
func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	limit := listLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		if n < limit {
			limit = n
		}
	}

	ids, err := s.engine.ListIDs(limit)
	if err != nil {
		logrus.WithError(err).Error("list documents")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"ids": ids})
}

// handleGet returns a single document.
//
// GET /api/docs/{id} -> 200 doc | 404
func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	doc, err := s.engine.Get(id)
	if err != nil {
		logrus.WithField("_id", id).WithError(err).Error("get document")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if doc == nil {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// handleCreate is the user-facing write path: local CAS, synchronous push
// to every peer, and rollback while still under the document lock when any
// peer reports a conflict.
//
// POST /api/docs -> 201 stored doc | 409 | 500
func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	input, ok := decodeDocument(w, r)
	if !ok {
		return
	}

	desiredID := input.ID()
	if desiredID == "" {
		desiredID = uuid.NewString()
	}

	var saved document.Document
	err := s.engine.WithDocTransaction(desiredID, func(tx *engine.Txn) error {
		prev, err := tx.Get()
		if err != nil {
			return err
		}

		saved, err = tx.Put(input)
		if err != nil {
			return err
		}

		// The fan-out runs on a fresh context: a client that hangs up
		// cannot abandon the transaction between local apply and
		// commit/rollback.
		res := s.pusher.Push(context.Background(), replication.Change{
			Op:      replication.OpPut,
			ID:      saved.ID(),
			PrevRev: revOf(prev),
			Rev:     saved.Rev(),
			Doc:     saved,
		})
		s.logFailures(saved.ID(), res)

		if len(res.Conflicts) > 0 {
			if prev != nil {
				if err := tx.ReplaceExact(prev, saved.Rev()); err != nil {
					return errors.Wrap(err, "roll back put")
				}
			} else {
				if err := tx.DeleteExpected(saved.Rev()); err != nil {
					return errors.Wrap(err, "roll back create")
				}
			}
			return errPeerConflict
		}
		return nil
	})
	if err != nil {
		s.writeWriteError(w, desiredID, err)
		return
	}
	writeJSON(w, http.StatusCreated, saved)
}

// handleDelete mirrors handleCreate for removal: idempotent local delete,
// push, restore on peer conflict.
//
// DELETE /api/docs/{id} -> 204 | 409 | 500
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	err := s.engine.WithDocTransaction(id, func(tx *engine.Txn) error {
		prev, err := tx.Get()
		if err != nil {
			return err
		}
		if err := tx.Delete(); err != nil {
			return err
		}

		res := s.pusher.Push(context.Background(), replication.Change{
			Op:      replication.OpDel,
			ID:      id,
			PrevRev: revOf(prev),
		})
		s.logFailures(id, res)

		if len(res.Conflicts) > 0 {
			if prev != nil {
				if err := tx.ReplaceExact(prev, ""); err != nil {
					return errors.Wrap(err, "roll back delete")
				}
			}
			return errPeerConflict
		}
		return nil
	})
	if err != nil {
		s.writeWriteError(w, id, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// decodeDocument reads a JSON object body and vets the reserved fields.
func decodeDocument(w http.ResponseWriter, r *http.Request) (document.Document, bool) {
	var input document.Document
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil || input == nil {
		writeError(w, http.StatusBadRequest, "body must be a JSON object")
		return nil, false
	}
	if v, present := input[document.FieldID]; present {
		if id, ok := v.(string); !ok || id == "" {
			writeError(w, http.StatusBadRequest, "_id must be a non-empty string")
			return nil, false
		}
	}
	if v, present := input[document.FieldRev]; present {
		if _, ok := v.(string); !ok {
			writeError(w, http.StatusBadRequest, "_rev must be a string")
			return nil, false
		}
	}
	return input, true
}

// writeWriteError maps a write-path error onto the client response.
func (s *Server) writeWriteError(w http.ResponseWriter, id string, err error) {
	switch {
	case errors.Is(err, engine.ErrConflict):
		writeError(w, http.StatusConflict, engine.ErrConflict.Error())
	case errors.Is(err, errPeerConflict):
		writeError(w, http.StatusConflict, errPeerConflict.Error())
	default:
		logrus.WithField("_id", id).WithError(err).Error("write document")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// logFailures records the peers that missed a push. Their divergence is
// accepted; there is no retry.
func (s *Server) logFailures(id string, res replication.Result) {
	for _, peer := range res.Failures {
		logrus.WithFields(logrus.Fields{
			"_id":  id,
			"peer": peer,
		}).Warn("peer missed replication push")
	}
}

func revOf(doc document.Document) string {
	if doc == nil {
		return ""
	}
	return doc.Rev()
}
