// Copyright 2025 Arion Yau
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package scalarweb

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"sonyhub/internal/sonynet"
)

// Result is the reply to a Request. Devices are inconsistent about the
// singular and plural keys, so both "result"/"results" and "error"/"errors"
// are accepted and merged when decoding.
type Result struct {
	ID      int
	Results []json.RawMessage
	Errors  []json.RawMessage

	response *sonynet.Response
}

// NewResult builds a result from its parts. The implied HTTP response is a
// 200 when there are no errors and a 500 describing them otherwise.
func NewResult(id int, results, errs []json.RawMessage) *Result {
	r := &Result{ID: id, Results: results, Errors: errs}
	r.deriveResponse()
	return r
}

// ResultFromResponse wraps an HTTP response that produced no ScalarWeb body.
// Any non-200 status becomes an ErrHTTP error whose description carries the
// status code.
func ResultFromResponse(resp *sonynet.Response) *Result {
	r := &Result{ID: -1, response: resp}
	if resp.StatusCode != http.StatusOK {
		reason := resp.Content()
		if reason == "" {
			reason = resp.Reason
		}
		r.Errors = []json.RawMessage{
			mustRaw(ErrHTTP),
			mustRaw(fmt.Sprintf("%d %s", resp.StatusCode, reason)),
		}
	}
	return r
}

// ErrorResult describes a local failure with an HTTP style status
func ErrorResult(statusCode int, reason string) *Result {
	return ResultFromResponse(sonynet.NewResponse(statusCode, reason))
}

// EmptySuccess is a successful result with no payload
func EmptySuccess() *Result {
	return NewResult(-1, nil, nil)
}

// NotImplementedResult reports that method isn't offered by the device
func NotImplementedResult(method string) *Result {
	return NewResult(-1, nil, []json.RawMessage{
		mustRaw(ErrNotImplemented),
		mustRaw(method + " is not implemented"),
	})
}

// HTTPResponse returns the response this result was derived from
func (r *Result) HTTPResponse() *sonynet.Response {
	if r.response == nil {
		r.deriveResponse()
	}
	return r.response
}

// HasResults reports whether the result carries a non-blank payload
func (r *Result) HasResults() bool {
	return !isBlank(r.Results)
}

// IsError reports whether the device (or transport) reported an error
func (r *Result) IsError() bool {
	return !isBlank(r.Errors)
}

// DeviceErrorCode returns the numeric code in the first error element
func (r *Result) DeviceErrorCode() int {
	if isBlank(r.Errors) {
		return ErrNone
	}
	code, err := strconv.Atoi(rawString(r.Errors[0]))
	if err != nil {
		return ErrUnknown
	}
	return code
}

// DeviceErrorDesc joins every error element with ", "
func (r *Result) DeviceErrorDesc() string {
	parts := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		parts = append(parts, rawString(e))
	}
	return strings.Join(parts, ", ")
}

// Err returns the result's error as a *sonynet.StatusError, or nil
func (r *Result) Err() error {
	if !r.IsError() {
		return nil
	}
	resp := r.HTTPResponse()
	code := resp.StatusCode
	if code == http.StatusOK {
		code = http.StatusInternalServerError
	}
	return &sonynet.StatusError{Code: code, Message: r.DeviceErrorDesc()}
}

// Decode unmarshals the single value carried by the result into v
func (r *Result) Decode(v any) error {
	if err := r.Err(); err != nil {
		return err
	}
	return decodeSingle(r.Results, v)
}

// DecodeResults decodes every element of a result as T
func DecodeResults[T any](r *Result) ([]T, error) {
	if err := r.Err(); err != nil {
		return nil, err
	}
	return decodeAll[T](r.Results)
}

type resultWire struct {
	ID      *int              `json:"id"`
	Result  []json.RawMessage `json:"result,omitempty"`
	Results []json.RawMessage `json:"results,omitempty"`
	Error   []json.RawMessage `json:"error,omitempty"`
	Errors  []json.RawMessage `json:"errors,omitempty"`
}

// UnmarshalJSON implements json.Unmarshaler
func (r *Result) UnmarshalJSON(data []byte) error {
	var w resultWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	r.ID = -1
	if w.ID != nil {
		r.ID = *w.ID
	}
	r.Results = append(append([]json.RawMessage{}, w.Result...), w.Results...)
	r.Errors = append(append([]json.RawMessage{}, w.Error...), w.Errors...)
	r.deriveResponse()
	return nil
}

// MarshalJSON implements json.Marshaler using the singular keys devices send
func (r *Result) MarshalJSON() ([]byte, error) {
	if len(r.Errors) > 0 {
		return json.Marshal(struct {
			ID    int               `json:"id"`
			Error []json.RawMessage `json:"error"`
		}{ID: r.ID, Error: r.Errors})
	}

	results := r.Results
	if results == nil {
		results = []json.RawMessage{}
	}
	return json.Marshal(struct {
		ID     int               `json:"id"`
		Result []json.RawMessage `json:"result"`
	}{ID: r.ID, Result: results})
}

func (r *Result) deriveResponse() {
	if isBlank(r.Errors) {
		r.response = sonynet.NewResponse(http.StatusOK, "OK")
		return
	}
	r.response = sonynet.NewResponse(http.StatusInternalServerError, r.DeviceErrorDesc())
}

func (r *Result) String() string {
	if len(r.Errors) > 0 {
		return fmt.Sprintf("id: %d, Error: [%s]", r.ID, r.DeviceErrorDesc())
	}
	b, _ := json.Marshal(r.Results)
	return fmt.Sprintf("id: %d, Results: %s", r.ID, b)
}

func mustRaw(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

// rawString renders a JSON scalar without quotes
func rawString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}
