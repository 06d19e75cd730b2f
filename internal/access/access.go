// Package access pairs sonyhub with Sony devices. Newer devices accept a
// ScalarWeb actRegister, older ones only the IRCC register action, and many
// answer both in their own creative ways.
package access

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
	"sonyhub/internal/ircc"
	"sonyhub/internal/logger"
	"sonyhub/internal/scalarweb"
	"sonyhub/internal/sonynet"
	"sonyhub/internal/transport"
)

// RequestCode is the access code value that asks the device to display a
// fresh code instead of using one
const RequestCode = "RQST"

// Result is the outcome of an access request
type Result struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

const CodeOther = "other"

var (
	OK             = Result{"ok", "OK"}
	NeedsPairing   = Result{"needspairing", "Device needs pairing"}
	ServiceMissing = Result{"servicemissing", "Service is missing"}
	DisplayOff     = Result{"displayoff", "Unable to request an access code - Display is turned off (must be on to see code)"}
	HomeMenu       = Result{"homemenu", "Unable to request an access code - HOME menu not displayed on device. Please display the home menu and try again."}
	Pending        = Result{"pending", "Access Code requested. Please update the Access Code with what is shown on the device screen."}
	NotAccepted    = Result{"notaccepted", "Access code was not accepted - please either request a new one or verify number matches what's shown on the device."}

	// OKHeader and OKCookie report which credential satisfied CheckAccess
	OKHeader = Result{"okHeader", "OK"}
	OKCookie = Result{"okCookie", "OK"}
)

// FromResponse wraps an unexpected HTTP outcome
func FromResponse(resp *sonynet.Response) Result {
	msg := resp.Content()
	if msg == "" {
		msg = resp.Reason
	}
	return Result{Code: CodeOther, Message: fmt.Sprintf("%d - %s", resp.StatusCode, msg)}
}

// IsOK reports whether the result grants access
func (r Result) IsOK() bool {
	return r == OK || r == OKHeader || r == OKCookie
}

func (r Result) String() string {
	return r.Code + ": " + r.Message
}

// Registrar is the IRCC side of pairing. *ircc.Client satisfies it.
type Registrar interface {
	RegisterURL() string
	RegistrationOrder() []string
	Register(ctx context.Context, registrationType, accessCode string) *sonynet.Response
}

// Authenticator runs the pairing dance against one device
type Authenticator struct {
	activationURL string
	version       string
	registrar     Registrar
	logger        zerolog.Logger
}

// Option configures an Authenticator
type Option func(*Authenticator)

// WithRegistrar enables the IRCC fallback
func WithRegistrar(r Registrar) Option {
	return func(a *Authenticator) {
		a.registrar = r
	}
}

// WithActRegisterVersion overrides the actRegister version, normally taken
// from the device's accessControl service
func WithActRegisterVersion(version string) Option {
	return func(a *Authenticator) {
		if version != "" {
			a.version = version
		}
	}
}

// NewAuthenticator creates an authenticator posting actRegister to
// activationURL, typically http://host/sony/accessControl
func NewAuthenticator(activationURL string, opts ...Option) *Authenticator {
	a := &Authenticator{
		activationURL: activationURL,
		version:       scalarweb.Version1_0,
		logger:        logger.Component("access"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Authenticator) registerURL() string {
	if a.registrar == nil {
		return ""
	}
	return a.registrar.RegisterURL()
}

// RequestAccess registers sonyhub with the device. With an empty accessCode
// the device is asked to display one. The access code header and device id
// header are left on t as persistent options.
func (a *Authenticator) RequestAccess(ctx context.Context, t transport.Transport, accessCode string) Result {
	if strings.EqualFold(accessCode, RequestCode) {
		accessCode = ""
	}
	a.logger.Debug().Str("access_code", accessCode).Msg("Requesting access")

	if accessCode != "" {
		t.SetOption(transport.NewHeader(sonynet.AccessCodeHeader(accessCode)))
	}
	t.SetOption(transport.NewHeader(sonynet.HeaderDeviceID, sonynet.DeviceID))

	result := a.actRegister(ctx, t, accessCode)
	resp := result.HTTPResponse()
	registerURL := a.registerURL()

	if resp.StatusCode == http.StatusUnauthorized && registerURL == "" {
		if accessCode == "" {
			return Pending
		}
		return NotAccepted
	}

	if result.DeviceErrorCode() == scalarweb.ErrNotImplemented ||
		(result.DeviceErrorCode() == scalarweb.ErrHTTP && resp.StatusCode == http.StatusServiceUnavailable) ||
		resp.StatusCode == http.StatusUnauthorized ||
		resp.StatusCode == http.StatusForbidden {
		if registerURL != "" {
			irccResp := a.irccRegister(ctx, accessCode)
			switch irccResp.StatusCode {
			case http.StatusOK:
				return OK
			case http.StatusUnauthorized:
				return Pending
			default:
				return FromResponse(irccResp)
			}
		}
	}

	if result.DeviceErrorCode() == scalarweb.ErrDisplayIsOff {
		return DisplayOff
	}
	if resp.StatusCode == http.StatusServiceUnavailable {
		return HomeMenu
	}
	if resp.StatusCode == http.StatusOK || result.DeviceErrorCode() == scalarweb.ErrIllegalArgument {
		return OK
	}
	return FromResponse(resp)
}

// RegisterRenewal refreshes an existing pairing
func (a *Authenticator) RegisterRenewal(ctx context.Context, t transport.Transport) Result {
	a.logger.Debug().Msg("Registering renewal")

	t.SetOption(transport.NewHeader(sonynet.HeaderDeviceID, sonynet.DeviceID))

	result := a.actRegister(ctx, t, "")
	resp := result.HTTPResponse()
	if resp.StatusCode == http.StatusOK {
		return OK
	}

	if resp.StatusCode == http.StatusUnauthorized && a.registerURL() == "" {
		return NeedsPairing
	}

	if a.registrar == nil {
		return FromResponse(sonynet.NewResponse(http.StatusServiceUnavailable, "No registration URL"))
	}
	irccResp := a.registrar.Register(ctx, ircc.RegistrationRenewal, "")
	if irccResp.StatusCode == http.StatusOK {
		return OK
	}
	return FromResponse(irccResp)
}

// irccRegister tries the advertised registration type first and the other
// one when the device rejects the first with a 400
func (a *Authenticator) irccRegister(ctx context.Context, accessCode string) *sonynet.Response {
	order := a.registrar.RegistrationOrder()
	var resp *sonynet.Response
	for _, registrationType := range order {
		resp = a.registrar.Register(ctx, registrationType, accessCode)
		if resp.StatusCode != http.StatusBadRequest {
			return resp
		}
	}
	if resp == nil {
		return sonynet.NewResponse(http.StatusServiceUnavailable, "No registration types")
	}
	return resp
}

func (a *Authenticator) actRegister(ctx context.Context, t transport.Transport, accessCode string) *scalarweb.Result {
	body, err := json.Marshal(scalarweb.NewActRegister(1, a.version))
	if err != nil {
		return scalarweb.ErrorResult(http.StatusInternalServerError, err.Error())
	}

	var opts []transport.Option
	if accessCode != "" {
		opts = append(opts, transport.NewHeader(sonynet.AuthHeader(accessCode)))
	}

	resp := transport.ExecutePostJSON(ctx, t, a.activationURL, string(body), opts...)
	if !resp.OK() {
		return scalarweb.ResultFromResponse(resp)
	}

	var result scalarweb.Result
	if err := json.Unmarshal(resp.Body, &result); err != nil {
		a.logger.Debug().Err(err).Str("body", resp.Content()).Msg("Unreadable actRegister response")
		return scalarweb.ResultFromResponse(resp)
	}
	return &result
}

// Checker validates access before a device is used. An access code is tried
// as a header first, then whatever cookie the transport holds.
type Checker struct {
	transport  transport.Transport
	accessCode string
}

// NewChecker creates a checker for t
func NewChecker(t transport.Transport, accessCode string) *Checker {
	return &Checker{transport: t, accessCode: accessCode}
}

// Check runs probe, first with the access code header then without
func (c *Checker) Check(ctx context.Context, probe func(ctx context.Context) Result) Result {
	if c.accessCode != "" && !strings.EqualFold(c.accessCode, RequestCode) {
		header := transport.NewHeader(sonynet.AccessCodeHeader(c.accessCode))
		c.transport.SetOption(header)
		ok := probe(ctx).IsOK()
		c.transport.RemoveOption(header)
		if ok {
			return OKHeader
		}
	}

	res := probe(ctx)
	if res.IsOK() {
		return OKCookie
	}
	return res
}
