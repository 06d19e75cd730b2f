package bravia_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/websocket"
	"sonyhub/internal/scalarweb"
)

// call is one ScalarWeb request seen by the fake TV
type call struct {
	Service string
	Request scalarweb.Request
	Header  http.Header
}

// fakeBravia serves the ScalarWeb services of a TV over HTTP and, for
// upgrade requests, over a websocket
type fakeBravia struct {
	*httptest.Server

	mu    sync.Mutex
	calls []call
	ircc  []*http.Request
	apis  map[string]scalarweb.SupportedAPI

	// handle answers a request; returning nil sends an empty success
	handle func(service string, req scalarweb.Request) any

	// onSocket is called for every request arriving on a websocket
	onSocket func(conn *websocket.Conn, service string, req scalarweb.Request)
}

func newFakeBravia(t *testing.T, apis ...scalarweb.SupportedAPI) *fakeBravia {
	t.Helper()

	tv := &fakeBravia{apis: map[string]scalarweb.SupportedAPI{}}
	for _, api := range apis {
		tv.apis[api.Service] = api
	}

	upgrader := websocket.Upgrader{}
	tv.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		service := strings.TrimPrefix(r.URL.Path, "/sony/")

		if websocket.IsWebSocketUpgrade(r) {
			conn, err := upgrader.Upgrade(w, r, nil)
			if err != nil {
				return
			}
			defer conn.Close()
			for {
				_, data, err := conn.ReadMessage()
				if err != nil {
					return
				}
				var req scalarweb.Request
				if json.Unmarshal(data, &req) != nil {
					continue
				}
				tv.record(service, req, r.Header)
				if tv.onSocket != nil {
					tv.onSocket(conn, service, req)
				}
			}
		}

		if strings.EqualFold(service, "IRCC") {
			tv.mu.Lock()
			tv.ircc = append(tv.ircc, r)
			tv.mu.Unlock()
			io.Copy(io.Discard, r.Body)
			w.WriteHeader(http.StatusOK)
			return
		}

		var req scalarweb.Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		tv.record(service, req, r.Header)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(tv.answer(service, req))
	}))
	t.Cleanup(tv.Close)
	return tv
}

func (tv *fakeBravia) record(service string, req scalarweb.Request, h http.Header) {
	tv.mu.Lock()
	defer tv.mu.Unlock()
	tv.calls = append(tv.calls, call{Service: service, Request: req, Header: h.Clone()})
}

func (tv *fakeBravia) answer(service string, req scalarweb.Request) map[string]any {
	if service == scalarweb.ServiceGuide {
		switch req.Method {
		case scalarweb.MethodGetSupportedAPIInfo:
			var names []string
			if len(req.Params) == 1 {
				if m, ok := req.Params[0].(map[string]any); ok {
					if list, ok := m["services"].([]any); ok {
						for _, n := range list {
							names = append(names, n.(string))
						}
					}
				}
			}
			var found []scalarweb.SupportedAPI
			for _, n := range names {
				if api, ok := tv.apis[n]; ok {
					found = append(found, api)
				}
			}
			if len(found) == 0 {
				return errorReply(req.ID, scalarweb.ErrNotImplemented, "unknown service")
			}
			return map[string]any{"id": req.ID, "result": []any{found}}

		case scalarweb.MethodGetServiceProtocols:
			var pairs []any
			for name, api := range tv.apis {
				pairs = append(pairs, []any{name, api.Protocols})
			}
			return map[string]any{"id": req.ID, "results": pairs}
		}
	}

	if tv.handle != nil {
		if res := tv.handle(service, req); res != nil {
			if m, ok := res.(map[string]any); ok {
				m["id"] = req.ID
				return m
			}
			return map[string]any{"id": req.ID, "result": res}
		}
	}
	return map[string]any{"id": req.ID, "result": []any{}}
}

func errorReply(id, code int, msg string) map[string]any {
	return map[string]any{"id": id, "error": []any{code, msg}}
}

func (tv *fakeBravia) callsTo(service string) []call {
	tv.mu.Lock()
	defer tv.mu.Unlock()
	var out []call
	for _, c := range tv.calls {
		if c.Service == service {
			out = append(out, c)
		}
	}
	return out
}

func (tv *fakeBravia) irccRequests() []*http.Request {
	tv.mu.Lock()
	defer tv.mu.Unlock()
	return append([]*http.Request(nil), tv.ircc...)
}

func api(service string, protocols []string, methods ...scalarweb.APIInfo) scalarweb.SupportedAPI {
	return scalarweb.SupportedAPI{Service: service, Protocols: protocols, APIs: methods}
}

func method(name string, versions ...string) scalarweb.APIInfo {
	info := scalarweb.APIInfo{Name: name}
	for _, v := range versions {
		info.Versions = append(info.Versions, scalarweb.APIVersion{Version: v})
	}
	return info
}

var httpOnly = []string{scalarweb.ProtocolHTTP}

func systemAPI() scalarweb.SupportedAPI {
	return api(scalarweb.ServiceSystem, httpOnly,
		method(scalarweb.MethodGetPowerStatus, "1.0"),
		method(scalarweb.MethodSetPowerStatus, "1.0"),
		method(scalarweb.MethodGetSystemInformation, "1.0"),
	)
}

func audioAPI(protocols ...string) scalarweb.SupportedAPI {
	if len(protocols) == 0 {
		protocols = httpOnly
	}
	return api(scalarweb.ServiceAudio, protocols,
		method(scalarweb.MethodGetVolumeInformation, "1.0"),
		method(scalarweb.MethodSetAudioVolume, "1.0", "1.2"),
		method(scalarweb.MethodSetAudioMute, "1.0"),
		method(scalarweb.MethodSwitchNotifications, "1.0"),
	)
}
