package api

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"

	"github.com/google/uuid"

	"github.com/strathearn/conductor/internal/stages"
	"github.com/strathearn/conductor/pkg/handlers"
	"github.com/strathearn/conductor/pkg/routes"
	"github.com/strathearn/conductor/pkg/storage"
)

// artifactHandler streams pipeline artifacts from blob storage. Artifacts
// are addressed by document id and kind rather than raw storage key.
type artifactHandler struct {
	store  storage.System
	logger *slog.Logger
}

func newArtifactHandler(store storage.System, logger *slog.Logger) *artifactHandler {
	return &artifactHandler{
		store:  store,
		logger: logger.With("handler", "artifacts"),
	}
}

func (h *artifactHandler) routes() routes.Group {
	return routes.Group{
		Prefix: "/documents",
		Routes: []routes.Route{
			{Method: "GET", Pattern: "/{id}/artifacts/{kind}", Handler: h.download},
		},
	}
}

// artifactKey resolves an artifact kind to its storage key and content type.
func artifactKey(id uuid.UUID, kind string) (key, contentType string, err error) {
	switch kind {
	case "text":
		return stages.ExtractedTextKey(id), "text/plain; charset=utf-8", nil
	case "chunks":
		return stages.ChunksKey(id), "application/json", nil
	case "summary":
		return stages.SummaryKey(id), "text/plain; charset=utf-8", nil
	default:
		return "", "", fmt.Errorf("unknown artifact kind %q", kind)
	}
}

func (h *artifactHandler) download(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return
	}

	key, contentType, err := artifactKey(id, r.PathValue("kind"))
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return
	}

	body, err := h.store.Download(r.Context(), key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			err = fmt.Errorf("artifact not produced yet: %w", err)
		}
		handlers.RespondError(w, h.logger, storage.MapHTTPStatus(err), err)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", contentType)
	w.Header().Set(
		"Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", path.Base(key)),
	)
	w.WriteHeader(http.StatusOK)
	io.Copy(w, body)
}
