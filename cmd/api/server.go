package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"subforge-go/internal/aggregator"
	"subforge-go/internal/audio"
	"subforge-go/internal/logger"
	"subforge-go/internal/processor"
	"subforge-go/internal/types"
)

type runner interface {
	Generate(ctx context.Context, src audio.Source, hooks processor.Hooks) (processor.Result, error)
	Regenerate(ctx context.Context, items []types.SubtitleItem, req processor.Request, src audio.Source, hooks processor.Hooks) (processor.Result, error)
}

type decodeFunc func(ctx context.Context, path string) (audio.Source, error)

type server struct {
	run       runner
	decode    decodeFunc
	mediaRoot string
	gather    prometheus.Gatherer
	log       *logger.Logger
}

func newServer(run runner, decode decodeFunc, mediaRoot string, gather prometheus.Gatherer, log *logger.Logger) *server {
	return &server{run: run, decode: decode, mediaRoot: mediaRoot, gather: gather, log: log}
}

var errOutsideRoot = errors.New("media_path is outside the media root")

// mediaPath resolves a client-supplied path. With a media root set, relative paths are
// joined to it and absolute paths must lie beneath it.
func (s *server) mediaPath(p string) (string, error) {
	if s.mediaRoot == "" {
		return p, nil
	}
	root := filepath.Clean(s.mediaRoot)
	if filepath.IsAbs(p) {
		rel, err := filepath.Rel(root, filepath.Clean(p))
		if err != nil || !filepath.IsLocal(rel) {
			return "", errOutsideRoot
		}
		return filepath.Join(root, rel), nil
	}
	if !filepath.IsLocal(p) {
		return "", errOutsideRoot
	}
	return filepath.Join(root, p), nil
}

// load resolves and decodes media. Path errors are the client's; decode errors are not.
func (s *server) load(ctx context.Context, w http.ResponseWriter, p string, items []types.SubtitleItem, reqLog *logrus.Entry) (audio.Source, bool) {
	path, err := s.mediaPath(p)
	if err != nil {
		reqLog.WithError(err).Warn("rejected media_path")
		http.Error(w, err.Error(), http.StatusBadRequest)
		return nil, false
	}
	src, err := s.decode(ctx, path)
	if err != nil {
		reqLog.WithError(err).Warn("decode failed")
		writeJSON(w, http.StatusUnprocessableEntity, runResponse{Items: items, Error: err.Error()}, reqLog)
		return nil, false
	}
	return src, true
}

type generateRequest struct {
	MediaPath string `json:"media_path"`
}

type regenerateRequest struct {
	MediaPath string               `json:"media_path,omitempty"`
	Items     []types.SubtitleItem `json:"items"`
	processor.Request
}

type runResponse struct {
	RunID   string               `json:"run_id,omitempty"`
	Items   []types.SubtitleItem `json:"items"`
	Summary *aggregator.Summary  `json:"summary,omitempty"`
	Error   string               `json:"error,omitempty"`
}

func (s *server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	// health
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "ok")
	})
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.gather, promhttp.HandlerOpts{}))
	mux.HandleFunc("POST /generate", s.handleGenerate)
	mux.HandleFunc("POST /regenerate", s.handleRegenerate)
	return mux
}

func (s *server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	reqLog := s.log.WithRequest(r).WithField("handler", "generate")

	var body generateRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.MediaPath == "" {
		reqLog.Warn("missing media_path")
		http.Error(w, "missing media_path", http.StatusBadRequest)
		return
	}
	reqLog = reqLog.WithField("media_path", body.MediaPath)
	reqLog.Info("generate request received")

	src, ok := s.load(r.Context(), w, body.MediaPath, nil, reqLog)
	if !ok {
		return
	}

	start := time.Now()
	res, err := s.run.Generate(r.Context(), src, processor.Hooks{})
	reqLog.WithField("duration_ms", time.Since(start).Milliseconds()).Info("generation finished")
	s.respond(w, res, err, reqLog)
}

func (s *server) handleRegenerate(w http.ResponseWriter, r *http.Request) {
	reqLog := s.log.WithRequest(r).WithField("handler", "regenerate")

	var body regenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		reqLog.WithError(err).Warn("bad request body")
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	reqLog = reqLog.WithFields(logrus.Fields{"mode": body.Mode, "batches": body.Batches, "items": len(body.Items)})
	reqLog.Info("regenerate request received")

	var src audio.Source
	if body.MediaPath != "" {
		var ok bool
		if src, ok = s.load(r.Context(), w, body.MediaPath, body.Items, reqLog); !ok {
			return
		}
	}

	start := time.Now()
	res, err := s.run.Regenerate(r.Context(), body.Items, body.Request, src, processor.Hooks{})
	reqLog.WithField("duration_ms", time.Since(start).Milliseconds()).Info("regeneration finished")
	s.respond(w, res, err, reqLog)
}

func (s *server) respond(w http.ResponseWriter, res processor.Result, err error, reqLog *logrus.Entry) {
	out := runResponse{RunID: res.RunID, Items: res.Items, Summary: &res.Summary}
	status := statusFor(err)
	if err != nil {
		out.Error = err.Error()
		reqLog.WithError(err).WithField("status", status).Warn("run returned error")
	}
	writeJSON(w, status, out, reqLog)
}

// statusFor maps a run error to a response code. Partial runs still answer 200 since the
// body carries every item that was produced.
func statusFor(err error) int {
	var partial *processor.PartialError
	switch {
	case err == nil, errors.As(err, &partial):
		return http.StatusOK
	case errors.Is(err, processor.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any, reqLog *logrus.Entry) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		reqLog.WithError(err).Error("failed to write response")
	}
}
