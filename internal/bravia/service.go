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

package bravia

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/rs/zerolog"
	"sonyhub/internal/logger"
	"sonyhub/internal/scalarweb"
	"sonyhub/internal/sonynet"
	"sonyhub/internal/transport"
)

// Service is one ScalarWeb service (system, audio, avContent...) of a device.
// Requests go out on the service's transport unless the method only speaks
// another protocol, in which case a transport is borrowed for that call.
type Service struct {
	name    string
	version string
	api     scalarweb.SupportedAPI

	factory   *transport.Factory
	transport transport.Transport

	nextID atomic.Int64
	logger zerolog.Logger
}

// ServiceOption configures a Service
type ServiceOption func(*Service)

// WithTransport uses t instead of asking the factory for one. The service
// takes ownership and closes it.
func WithTransport(t transport.Transport) ServiceOption {
	return func(s *Service) {
		s.transport = t
	}
}

// WithVersion sets the API version used for the service's own housekeeping
// calls (getVersions, getMethodTypes)
func WithVersion(version string) ServiceOption {
	return func(s *Service) {
		s.version = version
	}
}

// NewService creates the service described by api
func NewService(ctx context.Context, factory *transport.Factory, api scalarweb.SupportedAPI, opts ...ServiceOption) (*Service, error) {
	if api.Service == "" {
		return nil, fmt.Errorf("service name is required")
	}

	s := &Service{
		name:    api.Service,
		version: scalarweb.Version1_0,
		api:     api,
		factory: factory,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.transport == nil {
		if factory == nil {
			return nil, fmt.Errorf("no transport or factory for service %s", s.name)
		}
		t, err := factory.TransportFor(ctx, api.ServiceProtocol())
		if err != nil {
			return nil, fmt.Errorf("no transport found for %s: %w", api.ServiceProtocol(), err)
		}
		s.transport = t
	}

	s.logger = logger.Component("bravia_service").With().
		Str("service", s.name).
		Str("protocol", string(s.transport.ProtocolType())).
		Logger()

	return s, nil
}

// Name returns the service name
func (s *Service) Name() string {
	return s.name
}

// Version returns the service's housekeeping API version
func (s *Service) Version() string {
	return s.version
}

// Transport returns the transport requests are sent on
func (s *Service) Transport() transport.Transport {
	return s.transport
}

// SupportedAPI returns what the device advertised for this service
func (s *Service) SupportedAPI() scalarweb.SupportedAPI {
	return s.api
}

// HasMethod reports whether the device advertised method
func (s *Service) HasMethod(method string) bool {
	_, ok := s.api.Method(method)
	return ok
}

// MethodVersion returns the latest advertised version of method, or ""
func (s *Service) MethodVersion(method string) string {
	return s.api.LatestVersion(method)
}

// MethodVersions returns every advertised version of method
func (s *Service) MethodVersions(method string) []string {
	return s.api.Versions(method)
}

func (s *Service) id() int {
	return int(s.nextID.Add(1))
}

// Execute calls method at its latest advertised version. Methods the device
// didn't advertise are answered locally with a not implemented result.
func (s *Service) Execute(ctx context.Context, method string, params ...any) *scalarweb.Result {
	return s.ExecuteSpecific(ctx, method, "", params...)
}

// ExecuteSpecific calls method at version. An empty version behaves like
// Execute.
func (s *Service) ExecuteSpecific(ctx context.Context, method, version string, params ...any) *scalarweb.Result {
	if version == "" {
		version = s.MethodVersion(method)
		if version == "" {
			s.logger.Debug().Str("method", method).Msg("Method doesn't exist in the service")
			return scalarweb.NotImplementedResult(method)
		}
	}
	return s.ExecuteRequest(ctx, scalarweb.NewRequest(s.id(), method, version, params...))
}

// ExecuteRequest sends req. When the method's protocols exclude the
// service's transport, a transport matching them is created for the call.
func (s *Service) ExecuteRequest(ctx context.Context, req *scalarweb.Request, opts ...transport.Option) *scalarweb.Result {
	protocols := s.api.MethodProtocols(req.Method, req.Version)
	if len(protocols) == 0 || containsFold(protocols, string(s.transport.ProtocolType())) {
		return transport.ExecuteScalar(ctx, s.transport, req, opts...)
	}

	if s.factory == nil {
		return scalarweb.ErrorResult(http.StatusInternalServerError,
			fmt.Sprintf("No transport for %s with protocols: %v", req, protocols))
	}

	t, err := s.factory.TransportFor(ctx, scalarweb.NewServiceProtocol(s.name, protocols...))
	if err != nil {
		s.logger.Debug().Err(err).Str("request", req.String()).Strs("protocols", protocols).Msg("No transport for request")
		return scalarweb.ErrorResult(http.StatusInternalServerError,
			fmt.Sprintf("No transport for %s with protocols: %v", req, protocols))
	}
	defer t.Close()

	s.logger.Debug().
		Str("request", req.String()).
		Str("method_protocol", string(t.ProtocolType())).
		Msg("Execution is using a different protocol than the service")

	return transport.ExecuteScalar(ctx, t, req, opts...)
}

// Versions asks the device which API versions the service implements
func (s *Service) Versions(ctx context.Context) ([]string, error) {
	res := s.ExecuteRequest(ctx, scalarweb.NewRequest(s.id(), scalarweb.MethodGetVersions, s.version))
	return scalarweb.DecodeResults[string](res)
}

// MethodTypes asks the device for the methods of apiVersion
func (s *Service) MethodTypes(ctx context.Context, apiVersion string) ([]scalarweb.Method, error) {
	res := s.ExecuteRequest(ctx, scalarweb.NewRequest(s.id(), scalarweb.MethodGetMethodTypes, s.version, apiVersion))
	return scalarweb.DecodeMethods(res)
}

// Methods lists every method of every version the device reports, plus any
// advertised method the reports left out
func (s *Service) Methods(ctx context.Context) []scalarweb.Method {
	var methods []scalarweb.Method

	versions, err := s.Versions(ctx)
	if err != nil {
		if strings.Contains(err.Error(), "404") {
			s.logger.Debug().Err(err).Msg("Could not retrieve methods - missing method (or service unavailable)")
		} else {
			s.logger.Debug().Err(err).Msg("Could not retrieve methods")
		}
	}
	for _, v := range versions {
		mt, err := s.MethodTypes(ctx, v)
		if err != nil {
			s.logger.Debug().Err(err).Str("version", v).Msg("Could not retrieve method types")
			continue
		}
		methods = append(methods, mt...)
	}

	for _, api := range s.api.APIs {
		for _, v := range api.Versions {
			if !hasMethod(methods, api.Name, v.Version) {
				methods = append(methods, scalarweb.Method{Name: api.Name, Version: v.Version})
			}
		}
	}
	return methods
}

// Notifications lists the notifications the device advertised
func (s *Service) Notifications() []scalarweb.Notification {
	var out []scalarweb.Notification
	for _, n := range s.api.Notifications {
		for _, v := range n.Versions {
			out = append(out, scalarweb.Notification{Name: n.Name, Version: v.Version})
		}
	}
	return out
}

// SwitchNotifications asks for the current notification state and enables
// everything the device offers. Events then arrive on the transport's
// listeners, which only happens on a websocket.
func (s *Service) SwitchNotifications(ctx context.Context) (*scalarweb.Notifications, error) {
	version := s.MethodVersion(scalarweb.MethodSwitchNotifications)
	if version == "" {
		version = scalarweb.Version1_0
	}

	var current scalarweb.Notifications
	res := s.ExecuteSpecific(ctx, scalarweb.MethodSwitchNotifications, version, scalarweb.Notifications{})
	if err := res.Decode(&current); err != nil {
		return nil, fmt.Errorf("failed to read notifications of %s: %w", s.name, err)
	}

	all := append(append([]scalarweb.Notification{}, current.Enabled...), current.Disabled...)
	wanted := scalarweb.Notifications{Enabled: all, Disabled: []scalarweb.Notification{}}

	var switched scalarweb.Notifications
	res = s.ExecuteSpecific(ctx, scalarweb.MethodSwitchNotifications, version, wanted)
	if err := res.Decode(&switched); err != nil {
		return nil, fmt.Errorf("failed to enable notifications of %s: %w", s.name, err)
	}

	s.logger.Debug().Int("enabled", len(switched.Enabled)).Msg("Notifications switched on")
	return &switched, nil
}

// ActRegister registers this controller with the device. With an access
// code the call carries a basic Authorization header for this request only.
func (s *Service) ActRegister(ctx context.Context, accessCode string) *scalarweb.Result {
	version := s.MethodVersion(scalarweb.MethodActRegister)
	if version == "" {
		return scalarweb.NotImplementedResult(scalarweb.MethodActRegister)
	}

	req := scalarweb.NewActRegister(s.id(), version)
	if accessCode == "" {
		return s.ExecuteRequest(ctx, req)
	}

	name, value := sonynet.AuthHeader(accessCode)
	return s.ExecuteRequest(ctx, req, transport.NewHeader(name, value))
}

// Close closes the service's transport
func (s *Service) Close() error {
	return s.transport.Close()
}

func (s *Service) String() string {
	return fmt.Sprintf("Service: %s (%s)", s.name, s.transport.ProtocolType())
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}

func hasMethod(methods []scalarweb.Method, name, version string) bool {
	for _, m := range methods {
		if strings.EqualFold(m.Name, name) && strings.EqualFold(m.Version, version) {
			return true
		}
	}
	return false
}
