package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/civicpay/unifee/internal/domain"
	"github.com/civicpay/unifee/internal/export"
	"github.com/civicpay/unifee/internal/ingestion"
	"github.com/civicpay/unifee/internal/repository"
)

// Handlers groups all HTTP handler methods and their dependencies.
type Handlers struct {
	posRepo      *repository.PositionRepo
	ingestionSvc *ingestion.Service
	exportSvc    *export.Service
	log          logrus.FieldLogger
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 1 {
		return def
	}
	return v
}

// --- IngestNotices ---

func (h *Handlers) IngestNotices(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form: "+err.Error())
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file field is required: "+err.Error())
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "read file: "+err.Error())
		return
	}

	batchFile := filepath.Base(header.Filename)
	if batchFile == "" || batchFile == "." {
		batchFile = uuid.NewString() + ".csv"
	}

	result, report, err := h.ingestionSvc.IngestBatch(batchFile, data)
	if err != nil {
		if errors.Is(err, domain.ErrEmptyRegistry) {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if report != nil {
		writeJSON(w, http.StatusUnprocessableEntity, report)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// --- ListPositions ---

func (h *Handlers) ListPositions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := repository.PositionFilter{
		BatchFile: q.Get("file"),
		Status:    q.Get("status"),
		Page:      parseIntDefault(q.Get("page"), 1),
		Limit:     parseIntDefault(q.Get("limit"), 50),
	}

	positions, total, err := h.posRepo.List(filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"positions": positions,
		"total":     total,
		"page":      filter.Page,
		"limit":     filter.Limit,
	})
}

// --- GetPosition ---

func (h *Handlers) GetPosition(w http.ResponseWriter, r *http.Request) {
	file := chi.URLParam(r, "file")
	id := chi.URLParam(r, "id")

	position, err := h.posRepo.Get(file, id)
	if err != nil {
		writeError(w, http.StatusNotFound, "position not found")
		return
	}
	writeJSON(w, http.StatusOK, position)
}

// --- GetBatchStatus ---

func (h *Handlers) GetBatchStatus(w http.ResponseWriter, r *http.Request) {
	file := chi.URLParam(r, "file")

	counts, err := h.posRepo.StatusCounts(file)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if len(counts) == 0 {
		writeError(w, http.StatusNotFound, "unknown batch file")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"batch_file": file,
		"counts":     counts,
		"complete":   counts[domain.StatusInserted] == 0 && counts[domain.StatusError] == 0,
	})
}

// --- GetBatchOutput ---

func (h *Handlers) GetBatchOutput(w http.ResponseWriter, r *http.Request) {
	file := chi.URLParam(r, "file")

	content, complete, err := h.exportSvc.RenderBatch(file)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if !complete {
		writeError(w, http.StatusConflict, "batch not yet complete")
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", "attachment; filename="+strconv.Quote(file))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(content))
}

// --- GetDashboard ---

func (h *Handlers) GetDashboard(w http.ResponseWriter, r *http.Request) {
	stats, err := h.posRepo.GetDashboardStats()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
