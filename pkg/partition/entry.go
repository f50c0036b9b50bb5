package partition

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Entry is a full-content response snapshot stored in a partition.
type Entry struct {
	// Body is the complete response body.
	Body []byte `json:"body"`

	// StatusCode is the HTTP status code of the snapshot. Always 200 for
	// stored entries; Put enforces this.
	StatusCode int `json:"status_code"`

	// Header holds the response headers.
	Header http.Header `json:"header"`

	// StoredAt is when the snapshot was written.
	StoredAt time.Time `json:"stored_at"`
}

// ResponseToEntry converts an HTTP response to an Entry.
// The response body is consumed and restored so the caller can still use it.
func ResponseToEntry(resp *http.Response) (*Entry, error) {
	if resp == nil {
		return nil, fmt.Errorf("response cannot be nil")
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	resp.Body.Close()

	// Restore body for caller
	resp.Body = io.NopCloser(bytes.NewReader(body))

	return &Entry{
		Body:       body,
		StatusCode: resp.StatusCode,
		Header:     resp.Header.Clone(),
		StoredAt:   time.Now(),
	}, nil
}

// Response materializes the snapshot as an HTTP response for the given
// request. Each call returns an independent body reader.
func (e *Entry) Response(req *http.Request) *http.Response {
	return &http.Response{
		Status:        http.StatusText(e.StatusCode),
		StatusCode:    e.StatusCode,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        e.Header.Clone(),
		Body:          io.NopCloser(bytes.NewReader(e.Body)),
		ContentLength: int64(len(e.Body)),
		Request:       req,
	}
}
