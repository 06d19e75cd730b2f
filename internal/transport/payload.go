package transport

import (
	"sonyhub/internal/scalarweb"
	"sonyhub/internal/sonynet"
)

// Payload is what gets sent: either a raw HTTP exchange or a ScalarWeb
// request. No other implementations exist.
type Payload interface {
	isPayload()
}

// HTTPPayload targets an explicit URL. A nil Body sends no body.
type HTTPPayload struct {
	URL  string
	Body *string
}

// NewHTTPPayload returns a payload for url with an optional body
func NewHTTPPayload(url string, body ...string) HTTPPayload {
	p := HTTPPayload{URL: url}
	if len(body) > 0 {
		b := body[0]
		p.Body = &b
	}
	return p
}

func (HTTPPayload) isPayload() {}

// ScalarPayload carries a ScalarWeb request to the transport's base URL
type ScalarPayload struct {
	Request *scalarweb.Request
}

func (ScalarPayload) isPayload() {}

// Result is what comes back, mirroring the Payload variants
type Result interface {
	isResult()
}

// HTTPResult wraps the raw response of an HTTPPayload
type HTTPResult struct {
	Response *sonynet.Response
}

func (HTTPResult) isResult() {}

// ScalarResult wraps the reply to a ScalarPayload
type ScalarResult struct {
	Result *scalarweb.Result
}

func (ScalarResult) isResult() {}
