package metrics

import (
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type requestLabel struct {
	method string
	path   string
	status string
}

type uploadLabel struct {
	category string
	outcome  string
}

// Recorder aggregates in-memory counters and gauges for HTTP requests,
// upload outcomes, stored bytes, and transcode jobs. It coordinates
// concurrent writers via a RWMutex while exposing an atomic gauge for active
// transcodes.
type Recorder struct {
	mu              sync.RWMutex
	requestCount    map[requestLabel]uint64
	requestDuration map[requestLabel]time.Duration
	uploadCount     map[uploadLabel]uint64
	bytesStored     map[string]uint64
	transcodeEvents map[string]uint64
	activeTranscode atomic.Int64
}

var defaultRecorder = New()

// New constructs an empty Recorder with initialized backing maps so callers
// can record immediately without additional setup.
func New() *Recorder {
	return &Recorder{
		requestCount:    make(map[requestLabel]uint64),
		requestDuration: make(map[requestLabel]time.Duration),
		uploadCount:     make(map[uploadLabel]uint64),
		bytesStored:     make(map[string]uint64),
		transcodeEvents: make(map[string]uint64),
	}
}

// Default returns the singleton Recorder shared by packages that do not
// require a custom instrumentation pipeline.
func Default() *Recorder {
	return defaultRecorder
}

// ObserveRequest accumulates request count and cumulative duration by HTTP
// method, normalized path, and status code.
func (r *Recorder) ObserveRequest(method, path string, status int, duration time.Duration) {
	label := requestLabel{
		method: strings.ToUpper(method),
		path:   normalizePath(path),
		status: fmt.Sprintf("%d", status),
	}
	r.mu.Lock()
	r.requestCount[label]++
	r.requestDuration[label] += duration
	r.mu.Unlock()
}

// UploadStored records a successfully stored part and the bytes it consumed.
func (r *Recorder) UploadStored(category string, size int64) {
	label := uploadLabel{category: normalizeName(category), outcome: "stored"}
	r.mu.Lock()
	r.uploadCount[label]++
	if size > 0 {
		r.bytesStored[label.category] += uint64(size)
	}
	r.mu.Unlock()
}

// UploadFailed records a failed part keyed by category and the stable error
// kind.
func (r *Recorder) UploadFailed(category, kind string) {
	outcome := normalizeName(kind)
	if outcome == "unknown" {
		outcome = "failed"
	}
	label := uploadLabel{category: normalizeName(category), outcome: outcome}
	r.mu.Lock()
	r.uploadCount[label]++
	r.mu.Unlock()
}

// TranscodeStarted records the beginning of a transcode job and increments
// the active gauge.
func (r *Recorder) TranscodeStarted() {
	r.recordTranscodeEvent("start")
	r.activeTranscode.Add(1)
}

// TranscodeCompleted records a successful transcode and decrements the
// active gauge.
func (r *Recorder) TranscodeCompleted() {
	r.recordTranscodeEvent("complete")
	r.decrementGauge(&r.activeTranscode)
}

// TranscodeFailed records a failed transcode and decrements the active gauge
// without letting it go negative.
func (r *Recorder) TranscodeFailed() {
	r.recordTranscodeEvent("fail")
	r.decrementGauge(&r.activeTranscode)
}

func (r *Recorder) recordTranscodeEvent(status string) {
	normalized := normalizeName(status)
	r.mu.Lock()
	r.transcodeEvents[normalized]++
	r.mu.Unlock()
}

func (r *Recorder) decrementGauge(gauge *atomic.Int64) {
	for {
		current := gauge.Load()
		if current <= 0 {
			return
		}
		if gauge.CompareAndSwap(current, current-1) {
			return
		}
	}
}

// ActiveTranscodes exposes the current number of in-flight transcode jobs.
func (r *Recorder) ActiveTranscodes() int64 {
	return r.activeTranscode.Load()
}

// UploadCounts returns a copy of the upload outcome counters keyed by
// "category/outcome" for tests and reporting.
func (r *Recorder) UploadCounts() map[string]uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	counts := make(map[string]uint64, len(r.uploadCount))
	for label, value := range r.uploadCount {
		counts[label.category+"/"+label.outcome] = value
	}
	return counts
}

// Reset clears all counters and gauges. Intended for test setups.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requestCount = make(map[requestLabel]uint64)
	r.requestDuration = make(map[requestLabel]time.Duration)
	r.uploadCount = make(map[uploadLabel]uint64)
	r.bytesStored = make(map[string]uint64)
	r.transcodeEvents = make(map[string]uint64)
	r.activeTranscode.Store(0)
}

// Handler exposes the Recorder as an http.Handler writing Prometheus text
// exposition data.
func (r *Recorder) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		r.Write(w)
	})
}

// Write renders the metrics in Prometheus text format with sorted label sets
// so scrapes and tests see stable output.
func (r *Recorder) Write(w io.Writer) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	requestLabels := r.sortedRequestLabels()
	uploadLabels := r.sortedUploadLabels()
	categories := r.sortedCategories()
	transcodeEvents := r.sortedTranscodeEvents()

	fmt.Fprintln(w, "# HELP coursemedia_http_requests_total Total number of HTTP requests processed by the API")
	fmt.Fprintln(w, "# TYPE coursemedia_http_requests_total counter")
	for _, label := range requestLabels {
		fmt.Fprintf(w, "coursemedia_http_requests_total{method=\"%s\",path=\"%s\",status=\"%s\"} %d\n",
			label.method, label.path, label.status, r.requestCount[label])
	}

	fmt.Fprintln(w, "# HELP coursemedia_http_request_duration_seconds_sum Cumulative duration of HTTP requests in seconds")
	fmt.Fprintln(w, "# TYPE coursemedia_http_request_duration_seconds_sum counter")
	for _, label := range requestLabels {
		fmt.Fprintf(w, "coursemedia_http_request_duration_seconds_sum{method=\"%s\",path=\"%s\",status=\"%s\"} %f\n",
			label.method, label.path, label.status, r.requestDuration[label].Seconds())
	}

	fmt.Fprintln(w, "# HELP coursemedia_uploads_total Upload outcomes by category and result")
	fmt.Fprintln(w, "# TYPE coursemedia_uploads_total counter")
	for _, label := range uploadLabels {
		fmt.Fprintf(w, "coursemedia_uploads_total{category=\"%s\",outcome=\"%s\"} %d\n",
			label.category, label.outcome, r.uploadCount[label])
	}

	fmt.Fprintln(w, "# HELP coursemedia_stored_bytes_total Bytes accepted into object storage by category")
	fmt.Fprintln(w, "# TYPE coursemedia_stored_bytes_total counter")
	for _, category := range categories {
		fmt.Fprintf(w, "coursemedia_stored_bytes_total{category=\"%s\"} %d\n", category, r.bytesStored[category])
	}

	fmt.Fprintln(w, "# HELP coursemedia_transcode_jobs_total Transcode job events by status")
	fmt.Fprintln(w, "# TYPE coursemedia_transcode_jobs_total counter")
	for _, event := range transcodeEvents {
		fmt.Fprintf(w, "coursemedia_transcode_jobs_total{status=\"%s\"} %d\n", event, r.transcodeEvents[event])
	}

	fmt.Fprintln(w, "# HELP coursemedia_transcode_active_jobs Current number of active transcode jobs")
	fmt.Fprintln(w, "# TYPE coursemedia_transcode_active_jobs gauge")
	fmt.Fprintf(w, "coursemedia_transcode_active_jobs %d\n", r.activeTranscode.Load())
}

func (r *Recorder) sortedRequestLabels() []requestLabel {
	labels := make([]requestLabel, 0, len(r.requestCount))
	for label := range r.requestCount {
		labels = append(labels, label)
	}
	sort.Slice(labels, func(i, j int) bool {
		if labels[i].method != labels[j].method {
			return labels[i].method < labels[j].method
		}
		if labels[i].path != labels[j].path {
			return labels[i].path < labels[j].path
		}
		return labels[i].status < labels[j].status
	})
	return labels
}

func (r *Recorder) sortedUploadLabels() []uploadLabel {
	labels := make([]uploadLabel, 0, len(r.uploadCount))
	for label := range r.uploadCount {
		labels = append(labels, label)
	}
	sort.Slice(labels, func(i, j int) bool {
		if labels[i].category != labels[j].category {
			return labels[i].category < labels[j].category
		}
		return labels[i].outcome < labels[j].outcome
	})
	return labels
}

func (r *Recorder) sortedCategories() []string {
	categories := make([]string, 0, len(r.bytesStored))
	for category := range r.bytesStored {
		categories = append(categories, category)
	}
	sort.Strings(categories)
	return categories
}

func (r *Recorder) sortedTranscodeEvents() []string {
	events := make([]string, 0, len(r.transcodeEvents))
	for event := range r.transcodeEvents {
		events = append(events, event)
	}
	sort.Strings(events)
	return events
}

func normalizeName(name string) string {
	normalized := strings.ToLower(strings.TrimSpace(name))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}

// normalizePath collapses upload record IDs so metric cardinality stays
// bounded.
func normalizePath(path string) string {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "/"
	}
	segments := strings.Split(trimmed, "/")
	for i, segment := range segments {
		if i > 0 && len(segment) > 0 && segments[i-1] == "uploads" {
			segments[i] = ":id"
			break
		}
	}
	return strings.Join(segments, "/")
}
