package scalarweb

import "fmt"

// Request is a single ScalarWeb JSON-RPC style call
type Request struct {
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Version string `json:"version"`
	Params  []any  `json:"params"`
}

// NewRequest builds a request. Params is never nil so it always encodes as an array.
func NewRequest(id int, method, version string, params ...any) *Request {
	if params == nil {
		params = []any{}
	}
	return &Request{
		ID:      id,
		Method:  method,
		Version: version,
		Params:  params,
	}
}

func (r *Request) String() string {
	return fmt.Sprintf("%s(%d) v%s", r.Method, r.ID, r.Version)
}
