package pipeline

import (
	"io"
	"time"
)

// ResultKind distinguishes plain objects from segmented videos.
type ResultKind string

const (
	KindObject         ResultKind = "object"
	KindSegmentedVideo ResultKind = "segmented_video"
)

// Part is one named file within an upload request. The byte stream is owned
// by the pipeline invocation that received it and is fully drained or
// abandoned by the time a terminal outcome is produced.
type Part struct {
	FieldName    string
	FileName     string
	ContentType  string
	DeclaredSize int64 // -1 when the transport did not declare a size
	Body         io.Reader
}

// Result is the immutable record returned for one successfully stored part.
// For segmented videos Location points at the manifest; the companion segment
// objects live at sibling keys and are discoverable only through it.
type Result struct {
	FieldName    string
	OriginalName string
	Category     string
	ContentType  string

	Bucket string
	Key    string
	Size   int64
	// Location is the public address of the object, or of the manifest for
	// segmented videos.
	Location string
	// ETag is set on the direct path only; a segmented video is a set of
	// objects with no single storage tag.
	ETag      string
	Segmented bool
	Kind      ResultKind
	StoredAt  time.Time
}

// PartOutcome pairs a part's field name with either its result or the error
// that terminated it. One part's failure never aborts its siblings.
type PartOutcome struct {
	FieldName string
	FileName  string
	Result    *Result
	Err       error
}
