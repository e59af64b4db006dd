// Package httpapi exposes the submission, polling, download, and cancel
// surface over HTTP. Everything here is thin glue; the work happens in the
// batch package.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/clearform/photo-upscaler/internal/batch"
	"github.com/clearform/photo-upscaler/internal/config"
	"github.com/clearform/photo-upscaler/internal/job"
	"github.com/clearform/photo-upscaler/internal/notify"
	"github.com/clearform/photo-upscaler/internal/process"
	"github.com/clearform/photo-upscaler/pkg/schema"
)

type Server struct {
	Cfg      config.Config
	Registry *job.Registry
	Pool     *batch.Pool
	Notifier notify.Notifier
	Logger   *slog.Logger
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/batches", s.handleCreateBatch)
		r.Get("/batches/{id}", s.handleGetBatch)
		r.Get("/batches/{id}/download", s.handleDownload)
		r.Post("/batches/{id}/cancel", s.handleCancel)
		r.Post("/notify-test", s.handleNotifyTest)
	})

	return r
}

func (s *Server) handleCreateBatch(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, int64(s.Cfg.MaxUploadMB)<<20)
	if err := r.ParseMultipartForm(64 << 20); err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("parse multipart: %w", err))
		return
	}

	files := r.MultipartForm.File["photos"]
	if len(files) == 0 {
		writeErr(w, http.StatusBadRequest, errors.New("upload at least one JPG/JPEG file"))
		return
	}
	if len(files) > s.Cfg.MaxFiles {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("too many files, max allowed is %d", s.Cfg.MaxFiles))
		return
	}

	scale, err := formFloat(r, "scale", s.Cfg.MinScale)
	if err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	targetMB, err := formFloat(r, "target_mb", s.Cfg.MinTargetMB)
	if err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	if err := process.ValidateSettings(scale, targetMB, s.Cfg.MinScale, s.Cfg.MinTargetMB, s.Cfg.MaxTargetMB); err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}

	workDir, err := os.MkdirTemp(s.Cfg.WorkDir, "upscale_")
	if err != nil {
		writeErr(w, http.StatusInternalServerError, fmt.Errorf("create work dir: %w", err))
		return
	}

	inputs, err := saveUploads(files, workDir)
	if err != nil {
		_ = os.RemoveAll(workDir)
		writeErr(w, http.StatusBadRequest, err)
		return
	}

	j := s.Registry.Create(len(inputs))
	s.Registry.Update(j.ID, func(j *job.Job) { j.WorkDir = workDir })

	err = s.Pool.Submit(batch.Task{
		JobID:    j.ID,
		Inputs:   inputs,
		Scale:    scale,
		TargetMB: targetMB,
		WorkDir:  workDir,
	})
	if err != nil {
		s.Registry.Update(j.ID, func(j *job.Job) {
			j.Status = job.StatusFailed
			j.Message = "Rejected: server is at capacity. Try again shortly."
		})
		_ = os.RemoveAll(workDir)
		writeErr(w, http.StatusServiceUnavailable, err)
		return
	}

	s.Logger.Info("batch submitted", "job_id", j.ID, "files", len(inputs), "scale", scale, "target_mb", targetMB)
	writeJSON(w, http.StatusAccepted, map[string]any{"job_id": j.ID})
}

// saveUploads copies each upload into the job work dir under a sanitized,
// collision-free name, keeping the original name for reporting.
func saveUploads(files []*multipart.FileHeader, workDir string) ([]batch.Input, error) {
	inputs := make([]batch.Input, 0, len(files))
	seen := map[string]struct{}{}

	for _, fh := range files {
		if fh.Filename == "" {
			continue
		}
		originalName := filepath.Base(fh.Filename)
		ext := filepath.Ext(originalName)
		if ext == "" {
			ext = ".jpg"
		}
		name := process.UniqueName(process.SafeName(originalName)+ext, seen)
		dest := filepath.Join(workDir, name)

		if err := copyUpload(fh, dest); err != nil {
			return nil, err
		}
		inputs = append(inputs, batch.Input{Path: dest, OriginalName: originalName})
	}

	if len(inputs) == 0 {
		return nil, errors.New("upload at least one JPG/JPEG file")
	}
	return inputs, nil
}

func copyUpload(fh *multipart.FileHeader, dest string) error {
	src, err := fh.Open()
	if err != nil {
		return fmt.Errorf("open upload %s: %w", fh.Filename, err)
	}
	defer src.Close()

	dst, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("create %s: %w", dest, err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("save upload %s: %w", fh.Filename, err)
	}
	return nil
}

func (s *Server) handleGetBatch(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	snap, ok := s.Registry.Get(id)
	if !ok {
		writeErr(w, http.StatusNotFound, errors.New("job not found"))
		return
	}

	payload := map[string]any{
		"job_id":       snap.ID,
		"status":       snap.Status,
		"total":        snap.Total,
		"processed":    snap.Processed,
		"succeeded":    snap.Succeeded,
		"failed":       snap.Failed,
		"skipped":      snap.Skipped,
		"warnings":     snap.Warnings,
		"current_item": snap.CurrentItem,
		"message":      snap.Message,
		"progress":     snap.Progress,
	}
	if snap.Ready {
		payload["download_url"] = fmt.Sprintf("/api/batches/%s/download", snap.ID)
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	snap, ok := s.Registry.Get(id)
	if !ok || !snap.Ready {
		writeErr(w, http.StatusNotFound, errors.New("archive not available"))
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filepath.Base(snap.ZipPath)))
	http.ServeFile(w, r, snap.ZipPath)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	snap, ok := s.Registry.Get(id)
	if !ok {
		writeErr(w, http.StatusNotFound, errors.New("job not found"))
		return
	}
	if snap.Status.Terminal() {
		writeErr(w, http.StatusConflict, fmt.Errorf("job already %s", snap.Status))
		return
	}
	if !s.Pool.Cancel(id) {
		writeErr(w, http.StatusConflict, errors.New("job is not cancelable"))
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"job_id": id, "canceling": true})
}

func (s *Server) handleNotifyTest(w http.ResponseWriter, r *http.Request) {
	err := s.Notifier.Send(r.Context(),
		"🧪 Photo upscaler test notification: completion alerts are working.",
		schema.BatchDone{Status: "test", HappenedAt: time.Now().Unix()},
	)
	if err != nil {
		writeErr(w, http.StatusBadGateway, fmt.Errorf("test notification could not be sent: %w", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sent": true})
}

func formFloat(r *http.Request, key string, fallback float64) (float64, error) {
	raw := r.FormValue(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", key, raw)
	}
	return v, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
