// Package batch drives submitted jobs to a terminal state: per-item
// processing, archive and report assembly, registry bookkeeping, and the
// completion notification.
package batch

import (
	"archive/zip"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/clearform/photo-upscaler/internal/img"
	"github.com/clearform/photo-upscaler/internal/job"
	"github.com/clearform/photo-upscaler/internal/notify"
	"github.com/clearform/photo-upscaler/internal/process"
	"github.com/clearform/photo-upscaler/pkg/schema"
)

// Input is one uploaded image: where the temporary copy lives and what the
// caller named it.
type Input struct {
	Path         string
	OriginalName string
}

// allowedExt gates inputs before the processor ever runs.
var allowedExt = map[string]bool{".jpg": true, ".jpeg": true}

// Limits bound per-item processing cost.
type Limits struct {
	MaxSizePasses   int
	MaxImagePixels  int
	MaxOutputPixels int
}

// Runner executes one batch at a time. It is the sole writer of the jobs it
// owns; pollers read through the registry.
type Runner struct {
	Registry     *job.Registry
	Strategy     img.Strategy
	Notifier     notify.Notifier
	Logger       *slog.Logger
	Limits       Limits
	NotifyOnDone bool
}

type tally struct {
	succeeded, failed, skipped, warnings int
}

// Run drives the job to a terminal state. Temporary inputs are deleted
// whatever the outcome; anything unanticipated escaping the per-item
// boundary fails the whole job with a generic message.
func (r *Runner) Run(ctx context.Context, jobID string, inputs []Input, scale, targetMB float64, workDir string) {
	logger := r.Logger.With("job_id", jobID)
	start := time.Now()

	defer func() {
		for _, in := range inputs {
			if err := os.Remove(in.Path); err != nil && !os.IsNotExist(err) {
				logger.Warn("cleanup input failed", "path", in.Path, "err", err)
			}
		}
	}()
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("batch panicked", "panic", rec)
			r.finishFailed(jobID, "Processing failed. See report for details.", start)
		}
	}()

	r.Registry.Update(jobID, func(j *job.Job) {
		j.Status = job.StatusProcessing
		j.Message = "Processing images..."
		j.WorkDir = workDir
	})
	logger.Info("batch started", "inputs", len(inputs), "scale", scale, "target_mb", targetMB, "strategy", r.Strategy.Name())

	counts, results, zipPath, err := r.runBatch(ctx, jobID, inputs, scale, targetMB, workDir, logger)
	if err != nil {
		msg := "Processing failed. See report for details."
		if ctx.Err() != nil {
			msg = "Processing canceled."
		}
		logger.Error("batch failed", "err", err)
		r.finishFailed(jobID, msg, start)
		return
	}

	summary := fmt.Sprintf("Processing complete. %d met target, %d upscaled but below target, %d hard failures.",
		counts.succeeded, counts.warnings, counts.failed)
	r.Registry.Update(jobID, func(j *job.Job) {
		j.Status = job.StatusDone
		j.CurrentItem = ""
		j.Message = summary
		j.ZipPath = zipPath
	})
	logger.Info("batch done",
		"succeeded", counts.succeeded,
		"warnings", counts.warnings,
		"failed", counts.failed,
		"skipped", counts.skipped,
		"zip_path", zipPath,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	doneMsg := fmt.Sprintf("✅ Photo batch complete. %d met target, %d upscaled below target, %d hard failures. ZIP is ready to download in the app.",
		counts.succeeded, counts.warnings, counts.failed)
	r.sendNotification(jobID, doneMsg, zipPath, results, start)
}

func (r *Runner) runBatch(ctx context.Context, jobID string, inputs []Input, scale, targetMB float64, workDir string, logger *slog.Logger) (tally, []schema.ItemResult, string, error) {
	var counts tally

	zipName := fmt.Sprintf("upscaled_%s.zip", time.Now().Format("20060102_150405"))
	zipPath := filepath.Join(workDir, zipName)
	zf, err := os.Create(zipPath)
	if err != nil {
		return counts, nil, "", fmt.Errorf("create archive: %w", err)
	}
	defer zf.Close()
	zw := zip.NewWriter(zf)

	reportLines := []string{process.TSVHeader}
	results := make([]schema.ItemResult, 0, len(inputs))
	used := map[string]struct{}{}

	for idx, in := range inputs {
		if err := ctx.Err(); err != nil {
			return counts, nil, "", fmt.Errorf("batch interrupted: %w", err)
		}

		if !allowedExt[strings.ToLower(filepath.Ext(in.OriginalName))] {
			counts.skipped++
			rep := process.Report{
				SourceName: in.OriginalName,
				Status:     process.StatusFailedInvalid,
				Notes:      "Unsupported file type.",
			}
			reportLines = append(reportLines, rep.TSV())
			results = append(results, toItemResult(rep))
			r.publishProgress(jobID, idx+1, counts)
			continue
		}

		outputName := process.UniqueName(process.SafeName(in.OriginalName)+"_upscaled.jpg", used)
		r.Registry.Update(jobID, func(j *job.Job) {
			j.CurrentItem = in.OriginalName
			j.Message = fmt.Sprintf("Processing %d/%d: %s", idx+1, len(inputs), in.OriginalName)
		})

		res := process.ProcessImage(ctx, in.Path, in.OriginalName, outputName, r.Strategy, process.Options{
			Scale:           scale,
			TargetMB:        targetMB,
			MaxSizePasses:   r.Limits.MaxSizePasses,
			MaxImagePixels:  r.Limits.MaxImagePixels,
			MaxOutputPixels: r.Limits.MaxOutputPixels,
		})

		if len(res.Output) > 0 {
			w, err := zw.Create(outputName)
			if err != nil {
				return counts, nil, "", fmt.Errorf("add archive entry %s: %w", outputName, err)
			}
			if _, err := w.Write(res.Output); err != nil {
				return counts, nil, "", fmt.Errorf("write archive entry %s: %w", outputName, err)
			}
		}

		reportLines = append(reportLines, res.Report.TSV())
		results = append(results, toItemResult(res.Report))

		switch res.Report.Status {
		case process.StatusOK:
			counts.succeeded++
		case process.StatusTargetNotMet:
			counts.warnings++
		case process.StatusFailedInvalid, process.StatusFailedProcessing:
			counts.failed++
		default:
			counts.skipped++
		}
		logger.Info("item processed", "item", in.OriginalName, "status", res.Report.Status, "quality", res.Report.Quality, "size_mb", res.Report.SizeMB)
		r.publishProgress(jobID, idx+1, counts)
	}

	reportEntry, err := zw.Create("_report.tsv")
	if err != nil {
		return counts, nil, "", fmt.Errorf("add report entry: %w", err)
	}
	if _, err := reportEntry.Write([]byte(strings.Join(reportLines, "\n"))); err != nil {
		return counts, nil, "", fmt.Errorf("write report entry: %w", err)
	}
	if err := zw.Close(); err != nil {
		return counts, nil, "", fmt.Errorf("finalize archive: %w", err)
	}
	if err := zf.Close(); err != nil {
		return counts, nil, "", fmt.Errorf("close archive: %w", err)
	}

	return counts, results, zipPath, nil
}

// publishProgress flushes counters after every single item so pollers see
// monotonic progress.
func (r *Runner) publishProgress(jobID string, processed int, counts tally) {
	r.Registry.Update(jobID, func(j *job.Job) {
		j.Processed = processed
		j.Succeeded = counts.succeeded
		j.Failed = counts.failed
		j.Skipped = counts.skipped
		j.Warnings = counts.warnings
	})
}

func (r *Runner) finishFailed(jobID, message string, start time.Time) {
	r.Registry.Update(jobID, func(j *job.Job) {
		j.Status = job.StatusFailed
		j.CurrentItem = ""
		j.Message = message
	})
	r.sendNotification(jobID, "⚠️ Photo batch failed before completion. Open the app to retry and check details.", "", nil, start)
}

// sendNotification delivers the terminal event on a fresh context: the job
// context may already be canceled, and a slow or broken notifier must not
// change job state.
func (r *Runner) sendNotification(jobID, message, zipPath string, results []schema.ItemResult, start time.Time) {
	if !r.NotifyOnDone || r.Notifier == nil {
		return
	}
	snap, ok := r.Registry.Get(jobID)
	if !ok {
		return
	}

	event := schema.BatchDone{
		JobID:            jobID,
		Status:           string(snap.Status),
		Total:            snap.Total,
		Succeeded:        snap.Succeeded,
		Failed:           snap.Failed,
		Skipped:          snap.Skipped,
		Warnings:         snap.Warnings,
		Message:          snap.Message,
		ArchivePath:      zipPath,
		Results:          results,
		ProcessingTimeMs: time.Since(start).Milliseconds(),
		HappenedAt:       time.Now().Unix(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := r.Notifier.Send(ctx, message, event); err != nil {
		r.Logger.Warn("completion notification failed", "job_id", jobID, "err", err)
	}
}

func toItemResult(rep process.Report) schema.ItemResult {
	return schema.ItemResult{
		SourceName: rep.SourceName,
		OutputName: rep.OutputName,
		Status:     string(rep.Status),
		SourceW:    rep.SrcW,
		SourceH:    rep.SrcH,
		OutputW:    rep.OutW,
		OutputH:    rep.OutH,
		Quality:    rep.Quality,
		SizeMB:     rep.SizeMB,
		Notes:      rep.Notes,
	}
}
