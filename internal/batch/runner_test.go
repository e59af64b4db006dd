package batch

import (
	"archive/zip"
	"bytes"
	"context"
	"image"
	"image/color"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/disintegration/imaging"

	"github.com/clearform/photo-upscaler/internal/img"
	"github.com/clearform/photo-upscaler/internal/job"
	"github.com/clearform/photo-upscaler/internal/notify"
	"github.com/clearform/photo-upscaler/internal/process"
	"github.com/clearform/photo-upscaler/pkg/schema"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func flatImage(w, h int) image.Image {
	im := image.NewNRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			im.Set(x, y, color.NRGBA{R: 120, G: 120, B: 120, A: 255})
		}
	}
	return im
}

func noiseImage(w, h int, seed int64) image.Image {
	rng := rand.New(rand.NewSource(seed))
	im := image.NewNRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			im.Set(x, y, color.NRGBA{
				R: uint8(rng.Intn(256)),
				G: uint8(rng.Intn(256)),
				B: uint8(rng.Intn(256)),
				A: 255,
			})
		}
	}
	return im
}

func writeJPEG(t *testing.T, dir, name string, im image.Image) string {
	t.Helper()
	path := filepath.Join(dir, name)
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, im, imaging.JPEG, imaging.JPEGQuality(90)); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write jpeg: %v", err)
	}
	return path
}

func testLimits() Limits {
	return Limits{
		MaxSizePasses:   3,
		MaxImagePixels:  12000 * 12000,
		MaxOutputPixels: 20000 * 20000,
	}
}

func newTestRunner(reg *job.Registry, strategy img.Strategy, notifier notify.Notifier) *Runner {
	return &Runner{
		Registry:     reg,
		Strategy:     strategy,
		Notifier:     notifier,
		Logger:       testLogger(),
		Limits:       testLimits(),
		NotifyOnDone: notifier != nil,
	}
}

// recordingNotifier captures the terminal event for assertions.
type recordingNotifier struct {
	mu      sync.Mutex
	message string
	event   schema.BatchDone
	calls   int
}

func (n *recordingNotifier) Send(ctx context.Context, message string, event schema.BatchDone) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.message = message
	n.event = event
	n.calls++
	return nil
}

// gateStrategy blocks the first upscale call until released, so tests can
// observe a batch mid-flight.
type gateStrategy struct {
	started chan struct{}
	release chan struct{}
}

func newGateStrategy() *gateStrategy {
	return &gateStrategy{started: make(chan struct{}, 16), release: make(chan struct{})}
}

func (g *gateStrategy) Name() string { return "gate" }

func (g *gateStrategy) Upscale(src image.Image, scale float64) (image.Image, error) {
	select {
	case g.started <- struct{}{}:
	default:
	}
	<-g.release
	return img.LanczosStrategy{}.Upscale(src, scale)
}

func waitTerminal(t *testing.T, reg *job.Registry, id string) job.Snapshot {
	t.Helper()
	deadline := time.Now().Add(30 * time.Second)
	for time.Now().Before(deadline) {
		if snap, ok := reg.Get(id); ok && snap.Status.Terminal() {
			return snap
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("job did not reach a terminal status in time")
	return job.Snapshot{}
}

func TestRunMixedBatch(t *testing.T) {
	workDir := t.TempDir()
	inputs := []Input{
		{Path: writeJPEG(t, workDir, "input_1", noiseImage(128, 128, 3)), OriginalName: "holiday.jpg"},
		{Path: writeJPEG(t, workDir, "input_2", flatImage(16, 16)), OriginalName: "wall.jpeg"},
		{Path: writeJPEG(t, workDir, "input_3", flatImage(16, 16)), OriginalName: "scan.png"},
	}

	reg := job.NewRegistry()
	j := reg.Create(len(inputs))
	notifier := &recordingNotifier{}
	r := newTestRunner(reg, img.LanczosStrategy{}, notifier)

	r.Run(context.Background(), j.ID, inputs, 4.0, 0.1, workDir)

	snap, _ := reg.Get(j.ID)
	if snap.Status != job.StatusDone {
		t.Fatalf("status = %s (message: %s), want done", snap.Status, snap.Message)
	}
	if snap.Processed != 3 || snap.Succeeded != 1 || snap.Warnings != 1 || snap.Skipped != 1 || snap.Failed != 0 {
		t.Fatalf("counters off: %+v", snap)
	}
	if !snap.Ready || snap.ZipPath == "" {
		t.Fatal("finished batch must expose its archive")
	}
	if !strings.Contains(snap.Message, "Processing complete.") {
		t.Fatalf("summary missing: %q", snap.Message)
	}

	zr, err := zip.OpenReader(snap.ZipPath)
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	defer zr.Close()

	names := map[string]bool{}
	var report string
	for _, f := range zr.File {
		names[f.Name] = true
		if f.Name == "_report.tsv" {
			rc, err := f.Open()
			if err != nil {
				t.Fatalf("open report: %v", err)
			}
			data, err := io.ReadAll(rc)
			rc.Close()
			if err != nil {
				t.Fatalf("read report: %v", err)
			}
			report = string(data)
		}
	}
	if len(zr.File) != 3 {
		t.Fatalf("archive has %d entries, want 2 images plus the report", len(zr.File))
	}
	if !names["holiday_upscaled.jpg"] || !names["wall_upscaled.jpg"] {
		t.Fatalf("missing image entries: %v", names)
	}

	lines := strings.Split(report, "\n")
	if len(lines) != 4 {
		t.Fatalf("report has %d lines, want header plus 3 items", len(lines))
	}
	if lines[0] != process.TSVHeader {
		t.Fatalf("report header = %q", lines[0])
	}
	if !strings.Contains(lines[3], "Unsupported file type.") {
		t.Fatalf("skipped item line missing: %q", lines[3])
	}

	for _, in := range inputs {
		if _, err := os.Stat(in.Path); !os.IsNotExist(err) {
			t.Fatalf("input %s not cleaned up", in.Path)
		}
	}

	if notifier.calls != 1 {
		t.Fatalf("notifier called %d times, want 1", notifier.calls)
	}
	if notifier.event.Status != "done" || notifier.event.Succeeded != 1 || len(notifier.event.Results) != 3 {
		t.Fatalf("unexpected event: %+v", notifier.event)
	}
	if !strings.Contains(notifier.message, "Photo batch complete.") {
		t.Fatalf("unexpected notification message: %q", notifier.message)
	}
}

func TestRunCanceledBetweenItems(t *testing.T) {
	workDir := t.TempDir()
	inputs := []Input{
		{Path: writeJPEG(t, workDir, "input_1", flatImage(16, 16)), OriginalName: "a.jpg"},
		{Path: writeJPEG(t, workDir, "input_2", flatImage(16, 16)), OriginalName: "b.jpg"},
	}

	reg := job.NewRegistry()
	j := reg.Create(len(inputs))
	gate := newGateStrategy()
	r := newTestRunner(reg, gate, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx, j.ID, inputs, 4.0, 0.1, workDir)
		close(done)
	}()

	<-gate.started
	cancel()
	close(gate.release)
	<-done

	snap, _ := reg.Get(j.ID)
	if snap.Status != job.StatusFailed {
		t.Fatalf("status = %s, want failed", snap.Status)
	}
	if snap.Message != "Processing canceled." {
		t.Fatalf("message = %q", snap.Message)
	}
	if snap.Ready {
		t.Fatal("canceled batch must not expose an archive")
	}
}

func TestPoolSaturationAndCancel(t *testing.T) {
	base, stop := context.WithCancel(context.Background())
	defer stop()

	reg := job.NewRegistry()
	gate := newGateStrategy()
	r := newTestRunner(reg, gate, nil)
	pool := NewPool(base, r, 1, 1, testLogger())

	makeTask := func(name string) Task {
		workDir := t.TempDir()
		j := reg.Create(1)
		return Task{
			JobID:    j.ID,
			Inputs:   []Input{{Path: writeJPEG(t, workDir, "input_1", flatImage(16, 16)), OriginalName: name}},
			Scale:    4.0,
			TargetMB: 0.1,
			WorkDir:  workDir,
		}
	}

	running := makeTask("a.jpg")
	if err := pool.Submit(running); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	<-gate.started // the single worker is now busy

	queued := makeTask("b.jpg")
	if err := pool.Submit(queued); err != nil {
		t.Fatalf("second submit should queue: %v", err)
	}

	rejected := makeTask("c.jpg")
	if err := pool.Submit(rejected); err != ErrQueueFull {
		t.Fatalf("third submit err = %v, want ErrQueueFull", err)
	}

	// A job can be canceled while it is still waiting in the queue.
	if !pool.Cancel(queued.JobID) {
		t.Fatal("queued job must be cancelable")
	}
	if pool.Cancel("no-such-job") {
		t.Fatal("unknown job must not be cancelable")
	}

	close(gate.release)

	if snap := waitTerminal(t, reg, running.JobID); snap.Status != job.StatusDone {
		t.Fatalf("running job status = %s, want done", snap.Status)
	}
	if snap := waitTerminal(t, reg, queued.JobID); snap.Status != job.StatusFailed || snap.Message != "Processing canceled." {
		t.Fatalf("canceled job snapshot: %+v", snap)
	}
}
