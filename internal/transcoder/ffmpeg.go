package transcoder

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
)

// FFmpeg runs the ffmpeg binary as an external process. The binary path is
// configurable so tests and alternate builds can substitute their own tool.
type FFmpeg struct {
	// Binary is the executable to invoke. Defaults to "ffmpeg" on PATH.
	Binary string
	Logger *slog.Logger
}

func NewFFmpeg(binary string, logger *slog.Logger) *FFmpeg {
	if strings.TrimSpace(binary) == "" {
		binary = "ffmpeg"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FFmpeg{Binary: binary, Logger: logger}
}

// Diagnostic wraps a transcoder exit error together with the tail of the
// tool's stderr so operators see why an encode failed.
type Diagnostic struct {
	Output string
	Err    error
}

func (d *Diagnostic) Error() string {
	return fmt.Sprintf("%s: %v", strings.TrimSpace(d.Output), d.Err)
}

func (d *Diagnostic) Unwrap() error { return d.Err }

func (f *FFmpeg) Transcode(ctx context.Context, inputPath, outputDir string, opts Options) error {
	opts = opts.withDefaults()
	if strings.TrimSpace(inputPath) == "" {
		return fmt.Errorf("input path is required")
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("prepare output directory: %w", err)
	}

	manifest := filepath.Join(outputDir, opts.BaseName+".m3u8")
	segmentPattern := filepath.Join(outputDir, opts.BaseName+"_%03d.ts")
	args := []string{
		"-y",
		"-i", inputPath,
		"-c:v", opts.VideoCodec,
		"-profile:v", opts.Profile,
		"-c:a", opts.AudioCodec,
		"-f", "hls",
		"-hls_time", strconv.Itoa(opts.SegmentSeconds),
		"-hls_list_size", "0",
		"-hls_flags", "independent_segments",
		"-hls_segment_filename", segmentPattern,
		manifest,
	}

	cmd := exec.CommandContext(ctx, f.Binary, args...)
	stderr := newTailBuffer(4096)
	cmd.Stdout = newLogWriter(f.Logger, "stdout")
	cmd.Stderr = stderr

	f.Logger.Debug("starting transcode", "input", inputPath, "output_dir", outputDir, "segment_seconds", opts.SegmentSeconds)
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return &Diagnostic{Output: stderr.Tail(), Err: ctxErr}
		}
		return &Diagnostic{Output: stderr.Tail(), Err: err}
	}
	return nil
}

// tailBuffer retains the last max bytes written, enough stderr context to
// diagnose an encode failure without holding the whole log.
type tailBuffer struct {
	mu   sync.Mutex
	max  int
	data []byte
}

func newTailBuffer(max int) *tailBuffer {
	return &tailBuffer{max: max}
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data = append(b.data, p...)
	if len(b.data) > b.max {
		b.data = b.data[len(b.data)-b.max:]
	}
	return len(p), nil
}

func (b *tailBuffer) Tail() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.data)
}

type logWriter struct {
	logger *slog.Logger
	stream string
}

func newLogWriter(logger *slog.Logger, stream string) *logWriter {
	return &logWriter{logger: logger, stream: stream}
}

func (w *logWriter) Write(p []byte) (int, error) {
	total := len(p)
	for len(p) > 0 {
		idx := bytes.IndexByte(p, '\n')
		var line []byte
		if idx == -1 {
			line = p
			p = nil
		} else {
			line = p[:idx]
			p = p[idx+1:]
		}
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		w.logger.Debug("ffmpeg", "stream", w.stream, "line", string(line))
	}
	return total, nil
}
