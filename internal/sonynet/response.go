package sonynet

import (
	"fmt"
	"io"
	"net/http"
)

// Response is a fully read HTTP response. Transports hand these out instead
// of *http.Response so callers never have to manage a body.
type Response struct {
	StatusCode int
	Reason     string
	Body       []byte
	Header     http.Header
}

// NewResponse builds a synthetic response, typically to describe a failure
// that happened before or instead of a real exchange
func NewResponse(statusCode int, reason string) *Response {
	return &Response{
		StatusCode: statusCode,
		Reason:     reason,
		Header:     http.Header{},
	}
}

// ReadResponse drains and closes resp
func ReadResponse(resp *http.Response) (*Response, error) {
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Reason:     http.StatusText(resp.StatusCode),
		Body:       body,
		Header:     resp.Header.Clone(),
	}, nil
}

// Content returns the body as a string
func (r *Response) Content() string {
	return string(r.Body)
}

// OK reports whether the status is 200
func (r *Response) OK() bool {
	return r.StatusCode == http.StatusOK
}

// Err converts a non-200 response into a *StatusError
func (r *Response) Err() error {
	if r.OK() {
		return nil
	}
	msg := r.Content()
	if msg == "" {
		msg = r.Reason
	}
	return &StatusError{Code: r.StatusCode, Message: msg}
}

func (r *Response) String() string {
	return fmt.Sprintf("%d %s", r.StatusCode, r.Reason)
}

// StatusError carries the HTTP status of a failed device exchange
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.Code, e.Message)
}
