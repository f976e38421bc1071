package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/turtacn/KeyIP-FPIndex/internal/application/indexing"
	"github.com/turtacn/KeyIP-FPIndex/internal/domain/molecule"
	"github.com/turtacn/KeyIP-FPIndex/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyIP-FPIndex/pkg/errors"
)

// IndexHandler serves the index maintenance endpoints.
type IndexHandler struct {
	svc     indexing.Service
	source  molecule.Source
	logger  logging.Logger
	maxBody int64
}

// NewIndexHandler creates an IndexHandler. source backs the rebuild endpoint
// and may be nil.
func NewIndexHandler(svc indexing.Service, source molecule.Source, logger logging.Logger, maxBody int64) *IndexHandler {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &IndexHandler{svc: svc, source: source, logger: logger, maxBody: maxBody}
}

type IndexBatchRequest struct {
	Molecules []molecule.Record `json:"molecules"`
}

type SnapshotRequest struct {
	Name string `json:"name,omitempty"`
}

// IndexMolecule handles POST /api/v1/index/molecules.
func (h *IndexHandler) IndexMolecule(w http.ResponseWriter, r *http.Request) {
	var rec molecule.Record
	if err := decodeJSON(w, r, h.maxBody, &rec); err != nil {
		writeAppError(w, h.logger, "invalid molecule", err)
		return
	}
	if err := h.svc.IndexMolecule(r.Context(), rec); err != nil {
		writeAppError(w, h.logger, "indexing molecule failed", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": rec.ID})
}

// DeleteMolecule handles DELETE /api/v1/index/molecules/{id}.
func (h *IndexHandler) DeleteMolecule(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeAppError(w, h.logger, "invalid delete", errors.InvalidParam("molecule id is required"))
		return
	}
	if err := h.svc.DeleteMolecules(r.Context(), id); err != nil {
		writeAppError(w, h.logger, "deleting molecule failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// IndexBatch handles POST /api/v1/index/batch. An aborted batch answers with
// the error and the partial result.
func (h *IndexHandler) IndexBatch(w http.ResponseWriter, r *http.Request) {
	var req IndexBatchRequest
	if err := decodeJSON(w, r, h.maxBody, &req); err != nil {
		writeAppError(w, h.logger, "invalid batch", err)
		return
	}
	if len(req.Molecules) == 0 {
		writeAppError(w, h.logger, "invalid batch", errors.InvalidParam("molecules must not be empty"))
		return
	}

	res, err := h.svc.IndexBatch(r.Context(), req.Molecules)
	if err != nil {
		status, body := errorResponse(err)
		h.logger.Error("batch indexing failed", logging.Err(err))
		writeJSON(w, status, struct {
			Error  ErrorResponse         `json:"error"`
			Result *indexing.BatchResult `json:"result,omitempty"`
		}{body, res})
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Rebuild handles POST /api/v1/index/rebuild.
func (h *IndexHandler) Rebuild(w http.ResponseWriter, r *http.Request) {
	if h.source == nil {
		writeAppError(w, h.logger, "rebuild unavailable",
			errors.New(errors.CodeUnavailable, "no molecule source is configured"))
		return
	}
	res, err := h.svc.Rebuild(r.Context(), h.source)
	if err != nil {
		writeAppError(w, h.logger, "rebuild failed", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Stats handles GET /api/v1/index/stats.
func (h *IndexHandler) Stats(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.Stats(r.Context())
	if err != nil {
		writeAppError(w, h.logger, "index stats failed", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// Snapshot handles POST /api/v1/index/snapshots.
func (h *IndexHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	var req SnapshotRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, h.maxBody, &req); err != nil {
			writeAppError(w, h.logger, "invalid snapshot request", err)
			return
		}
	}
	snap, err := h.svc.Snapshot(r.Context(), req.Name)
	if err != nil {
		writeAppError(w, h.logger, "snapshot failed", err)
		return
	}
	writeJSON(w, http.StatusCreated, snap)
}

// Restore handles POST /api/v1/index/snapshots/restore. An empty name
// restores the newest snapshot.
func (h *IndexHandler) Restore(w http.ResponseWriter, r *http.Request) {
	var req SnapshotRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, h.maxBody, &req); err != nil {
			writeAppError(w, h.logger, "invalid restore request", err)
			return
		}
	}
	snap, err := h.svc.Restore(r.Context(), req.Name)
	if err != nil {
		writeAppError(w, h.logger, "restore failed", err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

//Personal.AI order the ending
