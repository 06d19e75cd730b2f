package scalarweb

import (
	"strconv"
	"strings"
)

// APIVersion is one version of an API method
type APIVersion struct {
	Version   string   `json:"version"`
	Protocols []string `json:"protocols,omitempty"`
}

// APIInfo lists the versions a method is available in
type APIInfo struct {
	Name     string       `json:"name"`
	Versions []APIVersion `json:"versions"`
}

// SupportedAPI is one element of the getSupportedApiInfo reply
type SupportedAPI struct {
	Service       string    `json:"service"`
	Protocols     []string  `json:"protocols"`
	APIs          []APIInfo `json:"apis"`
	Notifications []APIInfo `json:"notifications,omitempty"`
}

// ServiceProtocol returns the service with its advertised protocols
func (s *SupportedAPI) ServiceProtocol() ServiceProtocol {
	return NewServiceProtocol(s.Service, s.Protocols...)
}

// Method looks up method by name, case insensitively
func (s *SupportedAPI) Method(method string) (*APIInfo, bool) {
	for i := range s.APIs {
		if strings.EqualFold(s.APIs[i].Name, method) {
			return &s.APIs[i], true
		}
	}
	return nil, false
}

// LatestVersion returns the highest version of method, or "" when unknown
func (s *SupportedAPI) LatestVersion(method string) string {
	api, ok := s.Method(method)
	if !ok {
		return ""
	}

	latest := ""
	for _, v := range api.Versions {
		if latest == "" || compareVersions(v.Version, latest) > 0 {
			latest = v.Version
		}
	}
	return latest
}

// Versions returns every version of method
func (s *SupportedAPI) Versions(method string) []string {
	api, ok := s.Method(method)
	if !ok {
		return nil
	}
	versions := make([]string, 0, len(api.Versions))
	for _, v := range api.Versions {
		versions = append(versions, v.Version)
	}
	return versions
}

// MethodProtocols returns the protocols usable for method at version. Versions
// without their own list inherit the service's protocols.
func (s *SupportedAPI) MethodProtocols(method, version string) []string {
	if api, ok := s.Method(method); ok {
		for _, v := range api.Versions {
			if v.Version == version && len(v.Protocols) > 0 {
				return v.Protocols
			}
		}
	}
	return s.Protocols
}

// compareVersions compares dotted numeric versions such as "1.10" and "1.2"
func compareVersions(a, b string) int {
	as, bs := strings.Split(a, "."), strings.Split(b, ".")
	for i := 0; i < len(as) || i < len(bs); i++ {
		var x, y int
		if i < len(as) {
			x, _ = strconv.Atoi(as[i])
		}
		if i < len(bs) {
			y, _ = strconv.Atoi(bs[i])
		}
		if x != y {
			if x < y {
				return -1
			}
			return 1
		}
	}
	return 0
}
