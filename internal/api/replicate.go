package api

import (
	"encoding/json"
	"net/http"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/dreamware/docmesh/internal/engine"
	"github.com/dreamware/docmesh/internal/replication"
)

// handleReplicate receives a peer's change record and applies it under the
// local per-document lock. The sender's revision is authoritative; this
// node never allocates a revision for a remote change.
//
// POST /replicate -> 200 {"ok":true} | 400 | 409 | 500
func (s *Server) handleReplicate(w http.ResponseWriter, r *http.Request) {
	var change replication.Change
	if err := json.NewDecoder(r.Body).Decode(&change); err != nil {
		writeError(w, http.StatusBadRequest, "body must be a JSON change record")
		return
	}
	if err := change.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var err error
	switch change.Op {
	case replication.OpPut:
		err = s.engine.ApplyRemotePut(change.Doc, change.PrevRev)
	case replication.OpDel:
		err = s.engine.ApplyRemoteDelete(change.ID, change.PrevRev)
	}

	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	case errors.Is(err, engine.ErrConflict):
		writeError(w, http.StatusConflict, engine.ErrConflict.Error())
	default:
		logrus.WithFields(logrus.Fields{
			"_id": change.ID,
			"op":  change.Op,
		}).WithError(err).Error("apply remote change")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
