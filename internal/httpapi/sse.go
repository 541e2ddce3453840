package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/dusk-indust/excelslim/internal/orchestrator"
	"github.com/dusk-indust/excelslim/internal/report"
)

// Frame is one Server-Sent Event on a run stream. Progress frames arrive in
// emission order. The last frame carries Result, and Error when the run
// failed.
type Frame struct {
	Progress *orchestrator.ProgressEvent `json:"progress,omitempty"`
	Result   *report.RunExport          `json:"result,omitempty"`
	Error    string                     `json:"error,omitempty"`
}

// SSEWriter writes Server-Sent Events to an http.ResponseWriter.
// Call Init once before writing any events to set the required headers.
type SSEWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewSSEWriter creates a new SSEWriter wrapping the given ResponseWriter.
// Without http.Flusher support writes still succeed but may be buffered.
func NewSSEWriter(w http.ResponseWriter) *SSEWriter {
	f, _ := w.(http.Flusher)
	return &SSEWriter{w: w, flusher: f}
}

// Init sets the SSE response headers and flushes them to the client.
func (sw *SSEWriter) Init() {
	h := sw.w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	sw.w.WriteHeader(http.StatusOK)
	if sw.flusher != nil {
		sw.flusher.Flush()
	}
}

// WriteFrame writes f as "data: {json}\n\n" and flushes.
func (sw *SSEWriter) WriteFrame(f Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("sse: marshal frame: %w", err)
	}
	if _, err := fmt.Fprintf(sw.w, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("sse: write frame: %w", err)
	}
	if sw.flusher != nil {
		sw.flusher.Flush()
	}
	return nil
}
