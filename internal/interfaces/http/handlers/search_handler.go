package handlers

import (
	"net/http"

	"github.com/turtacn/KeyIP-FPIndex/internal/application/indexing"
	"github.com/turtacn/KeyIP-FPIndex/internal/domain/fingerprint"
	"github.com/turtacn/KeyIP-FPIndex/internal/infrastructure/monitoring/logging"
)

// SearchHandler serves fingerprint computation and substructure screens.
type SearchHandler struct {
	svc     indexing.Service
	logger  logging.Logger
	maxBody int64
}

// NewSearchHandler creates a SearchHandler.
func NewSearchHandler(svc indexing.Service, logger logging.Logger, maxBody int64) *SearchHandler {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &SearchHandler{svc: svc, logger: logger, maxBody: maxBody}
}

type FingerprintRequest struct {
	Structure string `json:"structure"`
	Kind      string `json:"kind,omitempty"`
}

type SearchRequest struct {
	Query   string `json:"query"`
	MaxHits int    `json:"max_hits,omitempty"`
	Verify  bool   `json:"verify,omitempty"`
}

// Fingerprint handles POST /api/v1/fingerprints.
func (h *SearchHandler) Fingerprint(w http.ResponseWriter, r *http.Request) {
	var req FingerprintRequest
	if err := decodeJSON(w, r, h.maxBody, &req); err != nil {
		writeAppError(w, h.logger, "invalid fingerprint request", err)
		return
	}
	kind, err := fingerprint.ParseKind(req.Kind)
	if err != nil {
		writeAppError(w, h.logger, "invalid fingerprint kind", err)
		return
	}

	res, err := h.svc.Fingerprint(r.Context(), &indexing.FingerprintInput{Structure: req.Structure, Kind: kind})
	if err != nil {
		writeAppError(w, h.logger, "fingerprint failed", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Search handles POST /api/v1/search/substructure.
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := decodeJSON(w, r, h.maxBody, &req); err != nil {
		writeAppError(w, h.logger, "invalid search request", err)
		return
	}

	res, err := h.svc.Search(r.Context(), &indexing.SearchInput{
		Query:   req.Query,
		MaxHits: req.MaxHits,
		Verify:  req.Verify,
	})
	if err != nil {
		writeAppError(w, h.logger, "substructure search failed", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

//Personal.AI order the ending
