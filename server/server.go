// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package server exposes imports over HTTP.
package server

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/poiesic/vectorload/ingestion"
	"github.com/poiesic/vectorload/source"
	"github.com/poiesic/vectorload/streams"
)

// Importer runs imports on behalf of the HTTP layer.
type Importer interface {
	// Import reads the stream's configured source and runs it.
	Import(ctx context.Context, stream string, params ingestion.Params) (*ingestion.Result, error)

	// Checkpoint returns the stream's stored offset.
	Checkpoint(ctx context.Context, stream string) (int, error)
}

// Handler serves the import API.
type Handler struct {
	importer Importer
	logger   *slog.Logger
}

// NewHandler creates a Handler.
func NewHandler(importer Importer, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{importer: importer, logger: logger.With("component", "http")}
}

// Router builds the gin engine with every route registered.
func (h *Handler) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), h.requestLog())

	r.GET("/healthz", h.Healthz)
	r.POST("/import/:stream", h.Import)
	r.POST("/import-skills", h.ImportSkills)
	r.GET("/checkpoints/:stream", h.Checkpoint)
	return r
}

// errorResponse is the body of every failed request.
type errorResponse struct {
	Error  string            `json:"error"`
	Result *ingestion.Result `json:"result,omitempty"`
}

type checkpointResponse struct {
	Stream string `json:"stream"`
	Offset int    `json:"offset"`
}

func (h *Handler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *Handler) Import(c *gin.Context) {
	h.runImport(c, c.Param("stream"))
}

// ImportSkills is kept for clients of the original skills endpoint.
func (h *Handler) ImportSkills(c *gin.Context) {
	h.runImport(c, streams.Skills)
}

func (h *Handler) runImport(c *gin.Context, stream string) {
	if !streams.Known(stream) {
		c.JSON(http.StatusNotFound, errorResponse{Error: "unknown stream " + stream})
		return
	}

	params := ingestion.DefaultParams()
	if err := c.ShouldBindJSON(&params); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	result, err := h.importer.Import(c.Request.Context(), stream, params)
	if err != nil {
		h.logger.Error("import failed", "stream", stream, "err", err)
		c.JSON(statusFor(err), errorResponse{Error: err.Error(), Result: result})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) Checkpoint(c *gin.Context) {
	stream := c.Param("stream")
	if !streams.Known(stream) {
		c.JSON(http.StatusNotFound, errorResponse{Error: "unknown stream " + stream})
		return
	}
	offset, err := h.importer.Checkpoint(c.Request.Context(), stream)
	if err != nil {
		c.JSON(statusFor(err), errorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, checkpointResponse{Stream: stream, Offset: offset})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, streams.ErrUnknownStream),
		errors.Is(err, source.ErrNoSource),
		errors.Is(err, fs.ErrNotExist):
		return http.StatusNotFound
	case errors.Is(err, ingestion.ErrStreamBusy):
		return http.StatusConflict
	case errors.Is(err, ingestion.ErrInvalidParams):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		h.logger.Info("request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"elapsed", time.Since(start),
		)
	}
}
