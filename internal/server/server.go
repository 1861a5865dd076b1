// =============================================================================
// XML Fee Reconciler - HTTP Server
// =============================================================================
//
// This module exposes the reconciliation pipeline over HTTP so that a form or
// script can upload an invoice and receive the corrected document.
//
// ROUTES:
//   GET  /healthz    Liveness probe
//   POST /reconcile  Multipart upload:
//                      file  (required) invoice XML
//                      mode  (optional) "amount" or "rate"
//                    Query parameters:
//                      download=xml   return the corrected XML as an attachment
//                      download=log   return the change log as an attachment
//                      log_format=... change log format for download=log
//                    Without download, a JSON summary is returned.
//
// STATUS CODES:
//   200  Reconciled
//   400  Missing upload or unreadable request
//   404  Unknown route
//   405  Wrong method
//   413  Upload larger than server.max_upload_bytes
//   422  Document or mode rejected (malformed XML, bad quantities, ...)
//   500  Anything else
//
// =============================================================================

package server

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"

	"github.com/ginjaninja78/xml-fee-reconciler/internal/config"
	"github.com/ginjaninja78/xml-fee-reconciler/internal/converter"
	"github.com/ginjaninja78/xml-fee-reconciler/internal/reconciler"
	"github.com/ginjaninja78/xml-fee-reconciler/internal/report"
	"github.com/ginjaninja78/xml-fee-reconciler/pkg/utils"
)

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// ReconcileResponse is the JSON body returned by POST /reconcile.
type ReconcileResponse struct {
	FileName   string                    `json:"file_name"`
	OutputName string                    `json:"output_name"`
	Mode       string                    `json:"mode"`
	Stats      converter.ProcessingStats `json:"stats"`
	ChangeLog  []report.Row              `json:"change_log"`
	Warnings   []string                  `json:"warnings,omitempty"`
	Document   string                    `json:"document"`
}

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

// =============================================================================
// SERVER
// =============================================================================

// Server serves the reconciliation endpoint.
type Server struct {
	mainConfig *config.MainConfig
	conv       *converter.Converter
	logger     zerolog.Logger
	httpServer *fasthttp.Server
}

// New creates a Server. Uploaded documents are staged through conv.
func New(mainConfig *config.MainConfig, conv *converter.Converter, logger zerolog.Logger) *Server {
	s := &Server{
		mainConfig: mainConfig,
		conv:       conv,
		logger:     logger,
	}

	s.httpServer = &fasthttp.Server{
		Handler:            s.Handler,
		Name:               "xml-fee-reconciler",
		MaxRequestBodySize: mainConfig.Server.MaxUploadBytes,
		ReadTimeout:        30 * time.Second,
		WriteTimeout:       30 * time.Second,
	}

	return s
}

// ListenAndServe serves on the configured address until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.mainConfig.Server.Addr).Msg("Listening")
		errCh <- s.httpServer.ListenAndServe(s.mainConfig.Server.Addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.logger.Info().Msg("Shutting down")
		return s.httpServer.Shutdown()
	}
}

// Handler routes a request.
func (s *Server) Handler(ctx *fasthttp.RequestCtx) {
	start := time.Now()

	switch string(ctx.Path()) {
	case "/healthz":
		if !ctx.IsGet() && !ctx.IsHead() {
			s.writeError(ctx, fasthttp.StatusMethodNotAllowed, "method not allowed")
			break
		}
		s.writeJSON(ctx, fasthttp.StatusOK, map[string]string{"status": "ok"})

	case "/reconcile":
		if !ctx.IsPost() {
			s.writeError(ctx, fasthttp.StatusMethodNotAllowed, "method not allowed")
			break
		}
		s.handleReconcile(ctx)

	default:
		s.writeError(ctx, fasthttp.StatusNotFound, "not found")
	}

	s.logger.Info().
		Str("method", string(ctx.Method())).
		Str("path", string(ctx.Path())).
		Int("status", ctx.Response.StatusCode()).
		Dur("elapsed", time.Since(start)).
		Msg("Request")
}

// =============================================================================
// RECONCILE HANDLER
// =============================================================================

func (s *Server) handleReconcile(ctx *fasthttp.RequestCtx) {
	header, err := ctx.FormFile("file")
	if err != nil {
		s.writeError(ctx, fasthttp.StatusBadRequest, "multipart field \"file\" is required")
		return
	}

	file, err := header.Open()
	if err != nil {
		s.writeError(ctx, fasthttp.StatusBadRequest, fmt.Sprintf("failed to open upload: %v", err))
		return
	}
	data, err := io.ReadAll(file)
	file.Close()
	if err != nil {
		s.writeError(ctx, fasthttp.StatusBadRequest, fmt.Sprintf("failed to read upload: %v", err))
		return
	}

	modeText := string(ctx.FormValue("mode"))
	if modeText == "" {
		modeText = s.mainConfig.Mode
	}
	mode, err := reconciler.ParseMode(modeText)
	if err != nil {
		s.writeError(ctx, fasthttp.StatusUnprocessableEntity, err.Error())
		return
	}

	fileName := filepath.Base(header.Filename)
	outcome, err := s.conv.Process(fileName, data, mode)
	if err != nil {
		status := fasthttp.StatusInternalServerError
		if converter.IsInputError(err) {
			status = fasthttp.StatusUnprocessableEntity
		}
		s.logger.Warn().Err(err).Str("file", fileName).Msg("Reconciliation failed")
		s.writeError(ctx, status, err.Error())
		return
	}

	outputName := utils.GenerateOutputFileName(s.mainConfig.OutputNameFormat, map[string]string{
		"original": utils.BaseName(fileName),
		"mode":     converter.ModeKey(mode),
	})

	switch string(ctx.QueryArgs().Peek("download")) {
	case "xml":
		attach(ctx, outputName, "application/xml; charset=utf-8", outcome.Document)

	case "log":
		format := s.mainConfig.ExportFormat()
		if requested := string(ctx.QueryArgs().Peek("log_format")); requested != "" {
			if format, err = report.ParseFormat(requested); err != nil {
				s.writeError(ctx, fasthttp.StatusBadRequest, err.Error())
				return
			}
		}

		var buffer bytes.Buffer
		if err := outcome.ChangeLog.Export(&buffer, format); err != nil {
			s.writeError(ctx, fasthttp.StatusInternalServerError, err.Error())
			return
		}
		logName := strings.TrimSuffix(outputName, filepath.Ext(outputName)) + format.Extension()
		attach(ctx, logName, contentType(format), buffer.Bytes())

	case "":
		response := ReconcileResponse{
			FileName:   fileName,
			OutputName: outputName,
			Mode:       mode.String(),
			Stats:      outcome.Stats,
			ChangeLog:  outcome.ChangeLog.Rows,
			Document:   string(outcome.Document),
		}
		for _, w := range outcome.Warnings {
			response.Warnings = append(response.Warnings, w.Error())
		}
		s.writeJSON(ctx, fasthttp.StatusOK, response)

	default:
		s.writeError(ctx, fasthttp.StatusBadRequest, "download must be xml or log")
	}
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

func attach(ctx *fasthttp.RequestCtx, name, mime string, body []byte) {
	ctx.SetStatusCode(fasthttp.StatusOK)
	ctx.SetContentType(mime)
	ctx.Response.Header.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	ctx.SetBody(body)
}

func contentType(format report.Format) string {
	switch format {
	case report.FormatCSV:
		return "text/csv; charset=utf-8"
	case report.FormatJSON:
		return "application/json"
	case report.FormatYAML:
		return "application/yaml"
	case report.FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "text/plain; charset=utf-8"
	}
}

func (s *Server) writeJSON(ctx *fasthttp.RequestCtx, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode response")
		ctx.Error("internal error", fasthttp.StatusInternalServerError)
		return
	}
	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json")
	ctx.SetBody(body)
}

func (s *Server) writeError(ctx *fasthttp.RequestCtx, status int, message string) {
	s.writeJSON(ctx, status, ErrorResponse{Status: status, Message: message})
}
