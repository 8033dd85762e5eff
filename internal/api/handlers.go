package api

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/handiism/music-parser/internal/download"
	"github.com/handiism/music-parser/internal/logging"
	"github.com/handiism/music-parser/internal/storage"
)

type batchRequest struct {
	References []string `json:"references"`
	Deliver    bool     `json:"deliver"`
	Bundle     bool     `json:"bundle"`
	Title      string   `json:"title"`
}

type unitView struct {
	Index      int    `json:"index"`
	Name       string `json:"name"`
	ExternalID string `json:"external_id,omitempty"`
	Filename   string `json:"filename,omitempty"`
	Status     string `json:"status"`
	Retries    int    `json:"retries"`
	Error      string `json:"error,omitempty"`
}

type eventView struct {
	Line       string `json:"line"`
	Message    string `json:"message,omitempty"`
	Level      string `json:"level"`
	Attachment string `json:"attachment,omitempty"`
}

type batchResponse struct {
	ID         string      `json:"id"`
	Summary    string      `json:"summary"`
	Completed  int         `json:"completed"`
	Incomplete int         `json:"incomplete"`
	Units      []unitView  `json:"units"`
	Artifacts  []string    `json:"artifacts"`
	Events     []eventView `json:"events"`
}

// eventRecorder is the progress sink of one HTTP batch. Attachments are
// recorded by name; clients download them from /api/v1/artifacts.
type eventRecorder struct {
	mu        sync.Mutex
	events    []eventView
	artifacts []string
}

func (r *eventRecorder) Notify(_ context.Context, ev download.ProgressEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	view := eventView{Line: ev.Line, Message: ev.Message, Level: ev.Level.String()}
	if ev.Attachment != "" {
		view.Attachment = filepath.Base(ev.Attachment)
		r.artifacts = append(r.artifacts, view.Attachment)
	}
	if view.Message != "" || view.Attachment != "" {
		r.events = append(r.events, view)
	}
	return nil
}

// CreateBatch expands the references and runs them as one batch.
// POST /api/v1/batches
func (s *Server) CreateBatch(c echo.Context) error {
	var req batchRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid request body")
	}

	ctx := c.Request().Context()
	units, err := s.runner.Expand(ctx, req.References)
	if err != nil {
		if errors.Is(err, download.ErrNoValidInput) {
			return errorJSON(c, http.StatusBadRequest, "Invalid input")
		}
		return errorJSON(c, http.StatusBadGateway, err.Error())
	}

	rec := &eventRecorder{}
	result, err := s.runner.RunBatch(ctx, units, download.BatchOptions{
		Deliver: req.Deliver,
		Bundle:  req.Bundle,
		Title:   req.Title,
		Sink:    rec,
	})
	switch {
	case errors.Is(err, download.ErrNoValidInput):
		return errorJSON(c, http.StatusBadRequest, "Invalid input")
	case err != nil && result == nil:
		return errorJSON(c, http.StatusServiceUnavailable, err.Error())
	}

	code := http.StatusOK
	if err != nil {
		logging.WarnWithContext(s.logger, "batch finished with storage error", "batch_storage_error",
			logging.String(logging.FieldBatchID, result.ID),
			logging.Error(err),
			logging.String(logging.FieldImpact, "index not persisted"))
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, newBatchResponse(result, rec))
}

func newBatchResponse(result *download.BatchResult, rec *eventRecorder) batchResponse {
	rec.mu.Lock()
	defer rec.mu.Unlock()

	resp := batchResponse{
		ID:         result.ID,
		Summary:    result.Summary,
		Completed:  len(result.Completed),
		Incomplete: len(result.Incomplete),
		Units:      make([]unitView, 0, len(result.Units)),
		Artifacts:  append([]string{}, rec.artifacts...),
		Events:     append([]eventView{}, rec.events...),
	}
	for _, u := range result.Units {
		view := unitView{
			Index:      u.Index,
			Name:       u.DisplayName(),
			ExternalID: u.ExternalID,
			Filename:   u.Filename,
			Status:     u.Status.Visible(),
			Retries:    u.Retries,
		}
		if u.Err != nil {
			view.Error = u.Err.Error()
		}
		resp.Units = append(resp.Units, view)
	}
	return resp
}

// GetArtifact serves a cached artifact or a bundle archive.
// GET /api/v1/artifacts/:name
func (s *Server) GetArtifact(c echo.Context) error {
	name := filepath.Base(c.Param("name"))
	if name == "." || name == "/" || storage.ReservedFile(name) {
		return errorJSON(c, http.StatusNotFound, "artifact not found")
	}

	if strings.EqualFold(filepath.Ext(name), ".zip") {
		path := s.cache.ArchivePath(name)
		if fileExists(path) {
			return c.Attachment(path, name)
		}
	}
	if s.cache.Present(name) {
		return c.Attachment(s.cache.Path(name), name)
	}
	return errorJSON(c, http.StatusNotFound, "artifact not found")
}

type entryView struct {
	Key       string    `json:"key"`
	Filename  string    `json:"filename"`
	Timestamp time.Time `json:"timestamp"`
	Delivered bool      `json:"delivered"`
	Size      int64     `json:"size"`
	Exists    bool      `json:"exists"`
}

// ListCache lists the content cache index.
// GET /api/v1/cache
func (s *Server) ListCache(c echo.Context) error {
	entries := s.cache.Entries()
	views := make([]entryView, 0, len(entries))
	for _, e := range entries {
		views = append(views, entryView{
			Key:       e.Key,
			Filename:  e.Entry.Filename,
			Timestamp: e.Entry.Timestamp,
			Delivered: e.Entry.Delivered,
			Size:      e.Size,
			Exists:    e.Exists,
		})
	}
	return c.JSON(http.StatusOK, map[string]any{
		"entries": views,
		"count":   len(views),
	})
}

// CreateToken issues a token for the calling admin.
// POST /api/v1/auth/token
func (s *Server) CreateToken(c echo.Context) error {
	id, _ := GetUserID(c)
	token, err := s.auth.GenerateToken(id)
	if err != nil {
		return errorJSON(c, http.StatusForbidden, err.Error())
	}
	return c.JSON(http.StatusCreated, map[string]string{"token": token})
}

type authorizeRequest struct {
	Token string `json:"token"`
}

// Authorize redeems a token for the caller.
// POST /api/v1/auth/authorize
func (s *Server) Authorize(c echo.Context) error {
	id, ok := GetUserID(c)
	if !ok {
		return errorJSON(c, http.StatusUnauthorized, "X-User-ID header is required")
	}
	var req authorizeRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid request body")
	}

	if !s.auth.Authorize(id, req.Token) {
		return c.JSON(http.StatusForbidden, map[string]any{"authorized": false})
	}
	s.logger.Info("user authorized", logging.Int64("user_id", id))
	return c.JSON(http.StatusOK, map[string]any{"authorized": true})
}
