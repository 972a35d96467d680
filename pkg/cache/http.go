package cache

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// OfflineBody is the body of the synthesized response served when the
// network is down and nothing is cached for the request.
const OfflineBody = "Offline content not available"

// IsSuccess reports whether status is in the 2xx class.
func IsSuccess(status int) bool {
	return status >= 200 && status < 300
}

// Cacheable reports whether a response with status may be stored: any 2xx
// except 206, partial content is never stored.
func Cacheable(status int) bool {
	return IsSuccess(status) && status != http.StatusPartialContent
}

// ResponseToEntry snapshots an HTTP response into a CacheEntry.
// It reads the whole body; the response body is restored after reading.
func ResponseToEntry(resp *http.Response) (*CacheEntry, error) {
	if resp == nil {
		return nil, fmt.Errorf("response cannot be nil")
	}

	var body []byte
	if resp.Body != nil {
		var err error
		body, err = io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("read response body: %w", err)
		}
	}

	// Restore body for caller
	resp.Body = io.NopCloser(bytes.NewReader(body))

	return &CacheEntry{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Headers:    resp.Header.Clone(),
		Data:       body,
		CachedAt:   time.Now(),
	}, nil
}

// EntryToResponse rebuilds an HTTP response from a cache entry.
// Every call returns an independent response and body.
func EntryToResponse(entry *CacheEntry, req *http.Request) *http.Response {
	status := entry.Status
	if status == "" {
		status = strconv.Itoa(entry.StatusCode) + " " + http.StatusText(entry.StatusCode)
	}
	header := entry.Headers.Clone()
	if header == nil {
		header = http.Header{}
	}
	return &http.Response{
		Status:        status,
		StatusCode:    entry.StatusCode,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(entry.Data)),
		ContentLength: int64(len(entry.Data)),
		Request:       req,
	}
}

// OfflineResponse synthesizes the 503 returned on a network failure with
// no cached entry.
func OfflineResponse(req *http.Request) *http.Response {
	header := http.Header{}
	header.Set("Content-Type", "text/plain; charset=utf-8")
	return &http.Response{
		Status:        "503 " + http.StatusText(http.StatusServiceUnavailable),
		StatusCode:    http.StatusServiceUnavailable,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader([]byte(OfflineBody))),
		ContentLength: int64(len(OfflineBody)),
		Request:       req,
	}
}
