package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"coursemedia/internal/transcoder"
)

// manifestContentType is served for HLS playlists regardless of what the
// client declared for the source video.
const manifestContentType = "application/vnd.apple.mpegurl"

// transcodePart drives a video part through its full lifecycle: spool the
// stream to a private workspace, run the transcoder, validate the segment set,
// then publish segments before the manifest. The workspace is destroyed on
// every exit path.
func (e *Engine) transcodePart(ctx context.Context, part Part, classification Classification, guarded *guardedReader) (Result, error) {
	ws, err := e.workspaces.Allocate()
	if err != nil {
		return Result{}, &TranscodeError{Stage: "workspace", Err: err}
	}
	defer func() {
		if relErr := ws.Release(); relErr != nil {
			e.logger.Warn("workspace release failed", "dir", ws.Dir(), "error", relErr)
		}
	}()

	inputPath, err := e.spool(ws, part, guarded)
	if err != nil {
		return Result{}, err
	}

	base := sanitizeBaseName(part.FileName)
	outputDir := filepath.Join(ws.Dir(), "hls")

	if err := e.runTranscode(ctx, inputPath, outputDir, base); err != nil {
		return Result{}, err
	}

	if err := validateSegmentSet(outputDir, base); err != nil {
		return Result{}, err
	}

	keyPrefix := classification.Folder + uniqueToken()
	manifestKey, err := e.uploadSegments(ctx, outputDir, keyPrefix, base)
	if err != nil {
		return Result{}, err
	}

	e.logger.Info("video stored",
		"field", part.FieldName,
		"category", classification.Category,
		"manifest", manifestKey,
		"source_bytes", guarded.Count(),
	)
	return Result{
		FieldName:    part.FieldName,
		OriginalName: part.FileName,
		Category:     classification.Category,
		ContentType:  manifestContentType,
		Bucket:       e.store.Bucket(),
		Key:          manifestKey,
		Size:         guarded.Count(),
		Location:     e.store.URL(manifestKey),
		Segmented:    true,
		Kind:         KindSegmentedVideo,
		StoredAt:     time.Now().UTC(),
	}, nil
}

// spool copies the incoming stream to disk so the transcoder gets a seekable
// input. Size-guard violations surface as themselves rather than as generic
// spool failures.
func (e *Engine) spool(ws *Workspace, part Part, guarded *guardedReader) (string, error) {
	ext := strings.ToLower(filepath.Ext(part.FileName))
	inputPath := filepath.Join(ws.Dir(), "source"+ext)

	file, err := os.Create(inputPath)
	if err != nil {
		return "", &TranscodeError{Stage: "spooling", Err: err}
	}
	_, copyErr := io.Copy(file, guarded)
	closeErr := file.Close()
	if copyErr != nil {
		if violation := guarded.Violation(); violation != nil {
			return "", violation
		}
		return "", &TranscodeError{Stage: "spooling", Err: copyErr}
	}
	if closeErr != nil {
		return "", &TranscodeError{Stage: "spooling", Err: closeErr}
	}
	return inputPath, nil
}

func (e *Engine) runTranscode(ctx context.Context, inputPath, outputDir, base string) error {
	transcodeCtx, cancel := context.WithTimeout(ctx, e.transcodeTimeout)
	defer cancel()

	e.metrics.TranscodeStarted()
	err := e.transcoder.Transcode(transcodeCtx, inputPath, outputDir, transcoder.Options{
		SegmentSeconds: e.segmentSeconds,
		BaseName:       base,
	})
	if err != nil {
		e.metrics.TranscodeFailed()
		var diag *transcoder.Diagnostic
		if errors.As(err, &diag) {
			return &TranscodeError{Stage: "transcoding", Output: diag.Output, Err: diag.Err}
		}
		return &TranscodeError{Stage: "transcoding", Err: err}
	}
	e.metrics.TranscodeCompleted()
	return nil
}

// validateSegmentSet confirms the transcoder produced a manifest and at least
// one media segment before anything is published.
func validateSegmentSet(outputDir, base string) error {
	entries, err := os.ReadDir(outputDir)
	if err != nil {
		return &TranscodeError{Stage: "validation", Err: err}
	}
	manifest := base + ".m3u8"
	var haveManifest bool
	var segments int
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch {
		case entry.Name() == manifest:
			haveManifest = true
		case strings.HasSuffix(entry.Name(), ".ts"):
			segments++
		}
	}
	if !haveManifest {
		return &TranscodeError{Stage: "validation", Err: fmt.Errorf("manifest %s not produced", manifest)}
	}
	if segments == 0 {
		return &TranscodeError{Stage: "validation", Err: fmt.Errorf("no media segments produced")}
	}
	return nil
}
