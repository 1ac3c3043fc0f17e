package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strings"

	"github.com/awestray/backlay/internal/domain"
)

// ArchiveService defines the object-storage reads the archive handler requires.
type ArchiveService interface {
	Get(ctx context.Context, p string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]domain.BlobInfo, error)
}

// ArchiveHandler lists and serves cold-storage archive objects.
type ArchiveHandler struct {
	blobs  ArchiveService
	logger *slog.Logger
}

// NewArchiveHandler creates an ArchiveHandler. blobs may be nil when object
// storage is not configured.
func NewArchiveHandler(blobs ArchiveService, logger *slog.Logger) *ArchiveHandler {
	return &ArchiveHandler{blobs: blobs, logger: logger}
}

// ListArchives returns the stored archive objects under a prefix.
// GET /api/archives?prefix=archive/opportunities/
func (h *ArchiveHandler) ListArchives(w http.ResponseWriter, r *http.Request) {
	if h.blobs == nil {
		writeError(w, http.StatusNotImplemented, "object storage not configured")
		return
	}

	prefix := r.URL.Query().Get("prefix")
	if prefix == "" {
		prefix = "archive/"
	}

	objects, err := h.blobs.List(r.Context(), prefix)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list archives failed",
			slog.String("prefix", prefix),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list archives")
		return
	}
	if objects == nil {
		objects = []domain.BlobInfo{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"prefix":  prefix,
		"objects": objects,
	})
}

// DownloadArchive streams one archive object to the client.
// GET /api/archives/{path...}
func (h *ArchiveHandler) DownloadArchive(w http.ResponseWriter, r *http.Request) {
	if h.blobs == nil {
		writeError(w, http.StatusNotImplemented, "object storage not configured")
		return
	}

	objPath := r.PathValue("path")
	if objPath == "" {
		writeError(w, http.StatusBadRequest, "missing object path")
		return
	}

	body, err := h.blobs.Get(r.Context(), objPath)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "archive object not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get archive failed",
			slog.String("path", objPath),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get archive object")
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", archiveContentType(objPath))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", path.Base(objPath)))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		// Headers are already out; all we can do is log the broken stream.
		h.logger.WarnContext(r.Context(), "handler: archive stream interrupted",
			slog.String("path", objPath),
			slog.String("error", err.Error()),
		)
	}
}

func archiveContentType(p string) string {
	if strings.HasSuffix(p, ".jsonl") {
		return "application/x-ndjson"
	}
	return "application/octet-stream"
}
