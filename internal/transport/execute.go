package transport

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"sonyhub/internal/scalarweb"
	"sonyhub/internal/sonynet"
)

// DefaultWaitTimeout bounds how long the Execute helpers wait on a future.
// Giving up does not cancel an exchange that is already in flight.
const DefaultWaitTimeout = 10 * time.Second

// ExecuteGet issues a GET and waits for the response
func ExecuteGet(ctx context.Context, t Transport, url string, opts ...Option) *sonynet.Response {
	return executeHTTP(ctx, t, NewHTTPPayload(url), withMethod(opts, MethodGet))
}

// ExecuteDelete issues a DELETE and waits for the response
func ExecuteDelete(ctx context.Context, t Transport, url string, opts ...Option) *sonynet.Response {
	return executeHTTP(ctx, t, NewHTTPPayload(url), withMethod(opts, MethodDelete))
}

// ExecutePostJSON posts a JSON body and waits for the response
func ExecutePostJSON(ctx context.Context, t Transport, url, body string, opts ...Option) *sonynet.Response {
	return executeHTTP(ctx, t, NewHTTPPayload(url, body), withMethod(opts, MethodPostJSON))
}

// ExecutePostXML posts an XML body and waits for the response
func ExecutePostXML(ctx context.Context, t Transport, url, body string, opts ...Option) *sonynet.Response {
	return executeHTTP(ctx, t, NewHTTPPayload(url, body), withMethod(opts, MethodPostXML))
}

// ExecuteScalar sends a ScalarWeb request and waits for its result. Every
// failure, including a timeout, comes back as an error result.
func ExecuteScalar(ctx context.Context, t Transport, req *scalarweb.Request, opts ...Option) *scalarweb.Result {
	wait, cancel := context.WithTimeout(ctx, DefaultWaitTimeout)
	defer cancel()

	res, err := t.Execute(ctx, ScalarPayload{Request: req}, opts...).Get(wait)
	if err != nil {
		return scalarweb.ErrorResult(http.StatusInternalServerError,
			fmt.Sprintf("Execution of %s threw an exception: %v", req, err))
	}

	sr, ok := res.(ScalarResult)
	if !ok || sr.Result == nil {
		return scalarweb.ErrorResult(http.StatusInternalServerError,
			fmt.Sprintf("Execution of %s didn't return a ScalarResult: %T", req, res))
	}
	return sr.Result
}

func executeHTTP(ctx context.Context, t Transport, payload HTTPPayload, opts []Option) *sonynet.Response {
	wait, cancel := context.WithTimeout(ctx, DefaultWaitTimeout)
	defer cancel()

	res, err := t.Execute(ctx, payload, opts...).Get(wait)
	if err != nil {
		return sonynet.NewResponse(http.StatusInternalServerError,
			fmt.Sprintf("Execution of %s threw an exception: %v", payload.URL, err))
	}

	hr, ok := res.(HTTPResult)
	if !ok || hr.Response == nil {
		return sonynet.NewResponse(http.StatusInternalServerError,
			fmt.Sprintf("Execution of %s didn't return an HTTPResult: %T", payload.URL, res))
	}
	return hr.Response
}

// withMethod puts m ahead of the caller's options. The first Method wins, so
// a stray Method among opts can't change the verb.
func withMethod(opts []Option, m Method) []Option {
	return append([]Option{m}, opts...)
}
