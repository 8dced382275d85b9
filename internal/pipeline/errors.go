package pipeline

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
)

// ErrorKind is the stable, machine-readable classification attached to every
// pipeline failure so API consumers can distinguish caller mistakes from
// transcoder or storage faults.
type ErrorKind string

const (
	KindUnknownField    ErrorKind = "unknown_field"
	KindDisallowedType  ErrorKind = "disallowed_type"
	KindFileTooLarge    ErrorKind = "file_too_large"
	KindRequestTooLarge ErrorKind = "request_too_large"
	KindDirectUpload    ErrorKind = "direct_upload_failed"
	KindTranscode       ErrorKind = "transcode_failed"
	KindSegmentUpload   ErrorKind = "segment_upload_failed"
)

// Kinder is implemented by every pipeline error type.
type Kinder interface {
	Kind() ErrorKind
}

// KindOf extracts the error kind from err, unwrapping as needed. It returns
// an empty kind for errors that did not originate in the pipeline.
func KindOf(err error) ErrorKind {
	var kinder Kinder
	if errors.As(err, &kinder) {
		return kinder.Kind()
	}
	return ""
}

// UnknownFieldError reports a part whose field name is not in the configured
// category table.
type UnknownFieldError struct {
	Field   string
	Allowed []string
}

func (e *UnknownFieldError) Kind() ErrorKind { return KindUnknownField }

func (e *UnknownFieldError) Error() string {
	allowed := append([]string(nil), e.Allowed...)
	sort.Strings(allowed)
	return fmt.Sprintf("invalid field name %q: allowed field names are %s", e.Field, strings.Join(allowed, ", "))
}

// DisallowedTypeError reports a file extension outside the allow-list for the
// part's field name.
type DisallowedTypeError struct {
	Field     string
	Extension string
	Allowed   []string
}

func (e *DisallowedTypeError) Kind() ErrorKind { return KindDisallowedType }

func (e *DisallowedTypeError) Error() string {
	return fmt.Sprintf("only %s files are allowed for %s, got %q", strings.Join(e.Allowed, ", "), e.Field, e.Extension)
}

// FileTooLargeError reports a single file crossing the per-file ceiling while
// streaming. Size holds the byte count observed before aborting.
type FileTooLargeError struct {
	Name  string
	Size  int64
	Limit int64
}

func (e *FileTooLargeError) Kind() ErrorKind { return KindFileTooLarge }

func (e *FileTooLargeError) Error() string {
	return fmt.Sprintf("file %q exceeds the %s size limit", e.Name, humanize.IBytes(uint64(e.Limit)))
}

// RequestTooLargeError reports the aggregate request ceiling being crossed.
// Files lists every part that contributed to the overflow.
type RequestTooLargeError struct {
	Files []string
	Size  int64
	Limit int64
}

func (e *RequestTooLargeError) Kind() ErrorKind { return KindRequestTooLarge }

func (e *RequestTooLargeError) Error() string {
	return fmt.Sprintf("request exceeds the %s aggregate size limit (files: %s)",
		humanize.IBytes(uint64(e.Limit)), strings.Join(e.Files, ", "))
}

// DirectUploadError wraps an object-storage failure on the direct path. It is
// not retried by the pipeline.
type DirectUploadError struct {
	Key string
	Err error
}

func (e *DirectUploadError) Kind() ErrorKind { return KindDirectUpload }
func (e *DirectUploadError) Unwrap() error   { return e.Err }

func (e *DirectUploadError) Error() string {
	return fmt.Sprintf("upload object %s: %v", e.Key, e.Err)
}

// TranscodeError reports a failure while spooling, transcoding, or validating
// transcoder output. Output carries the tool's diagnostic text when available.
type TranscodeError struct {
	Stage  string
	Output string
	Err    error
}

func (e *TranscodeError) Kind() ErrorKind { return KindTranscode }
func (e *TranscodeError) Unwrap() error   { return e.Err }

func (e *TranscodeError) Error() string {
	msg := fmt.Sprintf("transcode %s: %v", e.Stage, e.Err)
	if out := strings.TrimSpace(e.Output); out != "" {
		msg += ": " + out
	}
	return msg
}

// SegmentUploadError reports a failed segment or manifest upload. Uploaded
// lists keys already committed to storage before the failure; those objects
// are not rolled back.
type SegmentUploadError struct {
	Key      string
	Uploaded []string
	Err      error
}

func (e *SegmentUploadError) Kind() ErrorKind { return KindSegmentUpload }
func (e *SegmentUploadError) Unwrap() error   { return e.Err }

func (e *SegmentUploadError) Error() string {
	return fmt.Sprintf("upload segment %s: %v (%d objects already uploaded)", e.Key, e.Err, len(e.Uploaded))
}
