// Package rest exposes the dataset catalog and provisioning state over HTTP.
package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/cinemetrics/datasetd/internal/dataset"
	"github.com/cinemetrics/datasetd/internal/logctx"
	"github.com/cinemetrics/datasetd/internal/storage"
	"github.com/go-chi/chi/v5"
)

// Provisioner is the slice of the provisioning engine the API needs.
type Provisioner interface {
	Ensure(ctx context.Context, spec dataset.Spec) (*dataset.Result, error)
}

// DatasetStatus is the wire representation of a catalog entry joined with its
// last recorded provisioning outcome.
type DatasetStatus struct {
	ID        string     `json:"id"`
	Filename  string     `json:"filename"`
	Source    string     `json:"source"`
	Size      int64      `json:"size,omitempty"`
	Checksum  string     `json:"checksum,omitempty"`
	Outcome   string     `json:"outcome,omitempty"`
	Reason    string     `json:"reason,omitempty"`
	Bytes     int64      `json:"bytes,omitempty"`
	CheckedAt *time.Time `json:"checked_at,omitempty"`
}

// EnsureResponse is the wire representation of a single Ensure call.
type EnsureResponse struct {
	DatasetID  string `json:"dataset_id"`
	Outcome    string `json:"outcome"`
	Reason     string `json:"reason,omitempty"`
	Bytes      int64  `json:"bytes,omitempty"`
	DurationMS int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

type DatasetHandler struct {
	manifest    *dataset.Manifest
	provisioner Provisioner
	repo        storage.ProvisionReadRepository
}

func NewDatasetHandler(manifest *dataset.Manifest, p Provisioner, repo storage.ProvisionReadRepository) *DatasetHandler {
	return &DatasetHandler{
		manifest:    manifest,
		provisioner: p,
		repo:        repo,
	}
}

func (h *DatasetHandler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", h.HandleHealth)
	r.Get("/readyz", h.HandleReady)
	r.Get("/datasets", h.HandleListDatasets)
	r.Post("/datasets/{id}/ensure", h.HandleEnsure)

	return r
}

// HandleHealth reports process liveness only.
func (h *DatasetHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleReady reports readiness: every catalog dataset must have a recorded
// outcome that is not a failure. A dataset never checked counts as not ready.
func (h *DatasetHandler) HandleReady(w http.ResponseWriter, r *http.Request) {
	logger := logctx.LoggerFromContext(r.Context())

	records, err := h.repo.LastResults()
	if err != nil {
		logger.Error("failed to load provisioning records", "err", err)
		http.Error(w, "failed to load provisioning records", http.StatusInternalServerError)

		return
	}

	byID := make(map[string]storage.ProvisionRecord, len(records))
	for _, rec := range records {
		byID[rec.DatasetID] = rec
	}

	var missing []string

	for _, spec := range h.manifest.Datasets {
		rec, ok := byID[spec.ID]
		if !ok || rec.Outcome == string(dataset.OutcomeFailed) {
			missing = append(missing, spec.ID)
		}
	}

	if len(missing) > 0 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status":    "not_ready",
			"unhealthy": missing,
		})

		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// HandleListDatasets returns the catalog joined with last known outcomes.
func (h *DatasetHandler) HandleListDatasets(w http.ResponseWriter, r *http.Request) {
	logger := logctx.LoggerFromContext(r.Context())

	records, err := h.repo.LastResults()
	if err != nil {
		logger.Error("failed to load provisioning records", "err", err)
		http.Error(w, "failed to load provisioning records", http.StatusInternalServerError)

		return
	}

	byID := make(map[string]storage.ProvisionRecord, len(records))
	for _, rec := range records {
		byID[rec.DatasetID] = rec
	}

	statuses := make([]DatasetStatus, 0, len(h.manifest.Datasets))

	for _, spec := range h.manifest.Datasets {
		status := DatasetStatus{
			ID:       spec.ID,
			Filename: spec.Filename,
			Source:   spec.Source,
			Size:     spec.Size,
			Checksum: spec.Checksum.String(),
		}

		if rec, ok := byID[spec.ID]; ok {
			status.Outcome = rec.Outcome
			status.Reason = rec.Reason
			status.Bytes = rec.Bytes
			checkedAt := rec.CheckedAt
			status.CheckedAt = &checkedAt
		}

		statuses = append(statuses, status)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"datasets": statuses})
}

// HandleEnsure triggers provisioning for one catalog dataset and blocks until
// it settles. Concurrent requests for the same dataset share one download.
func (h *DatasetHandler) HandleEnsure(w http.ResponseWriter, r *http.Request) {
	logger := logctx.LoggerFromContext(r.Context())

	id := chi.URLParam(r, "id")

	spec, ok := h.manifest.Lookup(id)
	if !ok {
		http.Error(w, "unknown dataset", http.StatusNotFound)

		return
	}

	res, err := h.provisioner.Ensure(r.Context(), spec)
	if res == nil {
		logger.Error("provisioner returned no result", "dataset_id", id, "err", err)
		http.Error(w, "provisioning failed", http.StatusInternalServerError)

		return
	}

	resp := EnsureResponse{
		DatasetID:  res.DatasetID,
		Outcome:    string(res.Outcome),
		Reason:     string(res.Reason),
		Bytes:      res.Bytes,
		DurationMS: res.Duration.Milliseconds(),
	}

	if res.Err != nil {
		resp.Error = res.Err.Error()
	}

	code := http.StatusOK
	if !res.OK() {
		code = http.StatusServiceUnavailable
	}

	writeJSON(w, code, resp)
}

func writeJSON(w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	_ = json.NewEncoder(w).Encode(body)
}
