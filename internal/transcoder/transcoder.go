// Package transcoder defines the subprocess contract the upload pipeline
// uses to turn a spooled video into an HLS manifest plus media segments, and
// provides the ffmpeg implementation of it.
package transcoder

import (
	"context"
)

// Options selects the encoding parameters for one transcode. Zero values are
// replaced with the documented defaults.
type Options struct {
	// SegmentSeconds is the fixed media-segment duration. Default 10.
	SegmentSeconds int
	// VideoCodec and AudioCodec name the target encoders. Defaults are
	// H.264 (libx264) and AAC.
	VideoCodec string
	AudioCodec string
	// Profile constrains the H.264 profile. Default baseline for widest
	// device compatibility.
	Profile string
	// BaseName is the output file stem: the manifest becomes
	// {BaseName}.m3u8 and segments {BaseName}_NNN.ts.
	BaseName string
}

func (o Options) withDefaults() Options {
	if o.SegmentSeconds <= 0 {
		o.SegmentSeconds = 10
	}
	if o.VideoCodec == "" {
		o.VideoCodec = "libx264"
	}
	if o.AudioCodec == "" {
		o.AudioCodec = "aac"
	}
	if o.Profile == "" {
		o.Profile = "baseline"
	}
	if o.BaseName == "" {
		o.BaseName = "index"
	}
	return o
}

// Transcoder converts the file at inputPath into a single-rendition HLS
// segment set inside outputDir. On success the directory holds one manifest
// and at least one media segment; on failure the returned error carries the
// tool's diagnostic output. Implementations must honor context cancellation.
type Transcoder interface {
	Transcode(ctx context.Context, inputPath, outputDir string, opts Options) error
}
