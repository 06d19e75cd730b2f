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

// Package sonynet holds the network helpers shared by every Sony protocol
// client: identity headers, URL construction, wake-on-lan and raw socket
// requests.
package sonynet

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"
)

const (
	// DeviceID identifies this controller to the device during registration
	DeviceID = "MediaRemote:00-11-22-33-44-55"

	// UserAgent is sent with every HTTP request
	UserAgent = "sonyhub/1.0"

	HeaderAuthorization = "Authorization"
	HeaderAccessCode    = "X-Auth-PSK"
	HeaderDeviceID      = "X-CERS-DEVICE-ID"
	HeaderDeviceInfo    = "X-CERS-DEVICE-INFO"
)

// DeviceName is the friendly name shown on the device's registered list
func DeviceName() string {
	return "sonyhub (" + DeviceID + ")"
}

// AuthHeader returns the basic authorization header used while pairing. The
// access code is left padded with zeros to four digits and sent as the
// password of an empty user.
func AuthHeader(accessCode string) (string, string) {
	code := accessCode
	if len(code) < 4 {
		code = strings.Repeat("0", 4-len(code)) + code
	}
	return HeaderAuthorization, "Basic " + base64.StdEncoding.EncodeToString([]byte(":"+code))
}

// AccessCodeHeader returns the pre-shared key header
func AccessCodeHeader(accessCode string) (string, string) {
	return HeaderAccessCode, accessCode
}

// BaseURL returns scheme://host[:port] for u
func BaseURL(u *url.URL) string {
	return fmt.Sprintf("%s://%s", u.Scheme, u.Host)
}

// SonyURL returns the ScalarWeb endpoint for serviceName on the device behind u
func SonyURL(u *url.URL, serviceName string) string {
	return fmt.Sprintf("%s://%s/sony/%s", u.Scheme, u.Host, serviceName)
}

// JoinURL appends path to base with exactly one slash between them
func JoinURL(base, path string) string {
	if path == "" {
		return base
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}

// ResolveURL resolves ref against base the way a browser would
func ResolveURL(base *url.URL, ref string) (*url.URL, error) {
	r, err := url.Parse(ref)
	if err != nil {
		return nil, fmt.Errorf("invalid url %q: %w", ref, err)
	}
	return base.ResolveReference(r), nil
}

// ParseDeviceURL accepts either a full URL or a bare host and returns an
// absolute http URL
func ParseDeviceURL(address string) (*url.URL, error) {
	if address == "" {
		return nil, fmt.Errorf("address is required")
	}
	if !strings.Contains(address, "://") {
		address = "http://" + address
	}
	u, err := url.Parse(address)
	if err != nil {
		return nil, fmt.Errorf("invalid device address %q: %w", address, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("device address %q has no host", address)
	}
	return u, nil
}
