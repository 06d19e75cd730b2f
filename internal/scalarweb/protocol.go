package scalarweb

import (
	"fmt"
	"strings"
)

// Wire protocol identifiers as reported by getSupportedApiInfo
const (
	ProtocolAuto      = "auto"
	ProtocolHTTP      = "xhrpost:jsonizer"
	ProtocolWebSocket = "websocket:jsonizer"
)

// ServiceProtocol names a service together with the protocols it accepts
type ServiceProtocol struct {
	Name      string
	Protocols []string
}

// NewServiceProtocol returns a ServiceProtocol for name
func NewServiceProtocol(name string, protocols ...string) ServiceProtocol {
	return ServiceProtocol{Name: name, Protocols: protocols}
}

// HasWebSocket reports whether the service accepts websocket requests
func (sp ServiceProtocol) HasWebSocket() bool {
	return sp.has(ProtocolWebSocket)
}

// HasHTTP reports whether the service accepts xhrpost requests
func (sp ServiceProtocol) HasHTTP() bool {
	return sp.has(ProtocolHTTP)
}

func (sp ServiceProtocol) has(protocol string) bool {
	for _, p := range sp.Protocols {
		if strings.EqualFold(p, protocol) {
			return true
		}
	}
	return false
}

// Is reports whether both describe the same service. Names compare case
// insensitively, protocols are ignored.
func (sp ServiceProtocol) Is(other ServiceProtocol) bool {
	return strings.EqualFold(sp.Name, other.Name)
}

func (sp ServiceProtocol) String() string {
	return fmt.Sprintf("%s (%s)", sp.Name, strings.Join(sp.Protocols, ", "))
}
