package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
)

// segmentUploadConcurrency bounds how many segment objects are written to
// storage at once for a single video.
const segmentUploadConcurrency = 4

// SegmentContentType maps an HLS output filename to its content type.
// Unrecognized extensions are an error so a transcoder misconfiguration never
// publishes objects with a guessed type.
func SegmentContentType(name string) (string, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".m3u8":
		return manifestContentType, nil
	case ".ts":
		return "video/MP2T", nil
	default:
		return "", fmt.Errorf("unrecognized segment file %q", name)
	}
}

// uploadSegments publishes every transcoder output under
// {keyPrefix}/{base}/hls/. Media segments go up concurrently; the manifest is
// written strictly last so a partial failure never leaves a reachable
// playlist pointing at missing segments.
func (e *Engine) uploadSegments(ctx context.Context, dir, keyPrefix, base string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", &SegmentUploadError{Err: err}
	}

	manifestName := base + ".m3u8"
	segmentNames := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || entry.Name() == manifestName {
			continue
		}
		if _, typeErr := SegmentContentType(entry.Name()); typeErr != nil {
			return "", &SegmentUploadError{Key: entry.Name(), Err: typeErr}
		}
		segmentNames = append(segmentNames, entry.Name())
	}
	sort.Strings(segmentNames)

	hlsPrefix := path.Join(keyPrefix, base, "hls")

	var (
		mu       sync.Mutex
		uploaded []string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(segmentUploadConcurrency)
	for _, name := range segmentNames {
		name := name
		g.Go(func() error {
			key := hlsPrefix + "/" + name
			contentType, _ := SegmentContentType(name)
			file, openErr := os.Open(filepath.Join(dir, name))
			if openErr != nil {
				return &SegmentUploadError{Key: key, Err: openErr}
			}
			defer file.Close()
			if _, putErr := e.store.Put(gctx, key, contentType, file); putErr != nil {
				return &SegmentUploadError{Key: key, Err: putErr}
			}
			mu.Lock()
			uploaded = append(uploaded, key)
			mu.Unlock()
			return nil
		})
	}
	if waitErr := g.Wait(); waitErr != nil {
		var segErr *SegmentUploadError
		if errors.As(waitErr, &segErr) {
			segErr.Uploaded = append([]string(nil), uploaded...)
			return "", segErr
		}
		return "", &SegmentUploadError{Uploaded: uploaded, Err: waitErr}
	}

	manifestKey := hlsPrefix + "/" + manifestName
	manifestFile, err := os.Open(filepath.Join(dir, manifestName))
	if err != nil {
		return "", &SegmentUploadError{Key: manifestKey, Uploaded: uploaded, Err: err}
	}
	defer manifestFile.Close()
	if _, err := e.store.Put(ctx, manifestKey, manifestContentType, manifestFile); err != nil {
		return "", &SegmentUploadError{Key: manifestKey, Uploaded: uploaded, Err: err}
	}
	return manifestKey, nil
}
