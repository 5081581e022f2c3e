package httpclient

import (
	"errors"
	"fmt"
	"io"
	"net/http"
)

// BodyTooLargeError is returned when a response body is over its byte cap.
// Declared is the Content-Length the server announced, or -1.
type BodyTooLargeError struct {
	Limit    int64
	Declared int64
}

func (e *BodyTooLargeError) Error() string {
	if e.Declared >= 0 {
		return fmt.Sprintf("response body of %d bytes exceeds cap of %d", e.Declared, e.Limit)
	}
	return fmt.Sprintf("response body exceeds cap of %d bytes", e.Limit)
}

// IsBodyTooLarge reports whether err came from a capped read.
func IsBodyTooLarge(err error) bool {
	var tooLarge *BodyTooLargeError
	return errors.As(err, &tooLarge)
}

// ReadBody reads resp.Body, refusing more than limit bytes. A declared
// Content-Length over the cap fails before anything is read. limit <= 0
// reads without a cap.
func ReadBody(resp *http.Response, limit int64) ([]byte, error) {
	if resp == nil || resp.Body == nil {
		return nil, errors.New("read body: no response body")
	}
	if limit <= 0 {
		return io.ReadAll(resp.Body)
	}
	if resp.ContentLength > limit {
		return nil, &BodyTooLargeError{Limit: limit, Declared: resp.ContentLength}
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, &BodyTooLargeError{Limit: limit, Declared: -1}
	}
	return data, nil
}
