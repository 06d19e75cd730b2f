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

package hub

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Device types the hub can build
const (
	DeviceTypeBravia   = "bravia"
	DeviceTypeDIAL     = "dial"
	DeviceTypeSimpleIP = "simpleip"
)

// DefaultListen is the API address used when none is configured
const DefaultListen = "127.0.0.1:8080"

// Config represents the hub configuration structure
type Config struct {
	Hub     HubConfig      `yaml:"hub"`
	Devices []DeviceConfig `yaml:"devices"`
}

// HubConfig contains hub identity and API settings
type HubConfig struct {
	ID          string `yaml:"id"`
	Listen      string `yaml:"listen"`
	TokenSecret string `yaml:"token_secret,omitempty"` // empty disables API auth
	TokenIssuer string `yaml:"token_issuer,omitempty"`
}

// ServiceConfig names a ScalarWeb service and the protocols it speaks
type ServiceConfig struct {
	Name      string   `yaml:"name"`
	Protocols []string `yaml:"protocols"`
}

// DeviceConfig represents a single device configuration
type DeviceConfig struct {
	ID         string `yaml:"id"`
	Type       string `yaml:"type"`
	Address    string `yaml:"address"`
	AccessCode string `yaml:"access_code,omitempty"`
	MAC        string `yaml:"mac,omitempty"`

	// bravia
	AutoAuth      bool            `yaml:"auto_auth,omitempty"`
	WebSocket     bool            `yaml:"websocket,omitempty"`
	Services      []ServiceConfig `yaml:"services,omitempty"`
	IRCCURL       string          `yaml:"ircc_url,omitempty"`
	EventServices []string        `yaml:"event_services,omitempty"`

	// simpleip
	Port int `yaml:"port,omitempty"`
}

// LoadConfig loads configuration from a YAML file
func LoadConfig(filepath string) (*Config, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Hub.ID == "" {
		c.Hub.ID = uuid.New().String()
	}
	if c.Hub.Listen == "" {
		c.Hub.Listen = DefaultListen
	}
	if c.Hub.TokenIssuer == "" {
		c.Hub.TokenIssuer = "sonyhub"
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Hub.ID == "" {
		return fmt.Errorf("hub.id is required")
	}

	deviceIDs := make(map[string]bool)
	for i, device := range c.Devices {
		if device.ID == "" {
			return fmt.Errorf("device[%d].id is required", i)
		}
		if deviceIDs[device.ID] {
			return fmt.Errorf("duplicate device ID: %s", device.ID)
		}
		deviceIDs[device.ID] = true

		switch device.Type {
		case DeviceTypeBravia, DeviceTypeDIAL, DeviceTypeSimpleIP:
		case "":
			return fmt.Errorf("device[%d].type is required", i)
		default:
			return fmt.Errorf("device[%d].type %q is not supported", i, device.Type)
		}
		if device.Address == "" {
			return fmt.Errorf("device[%d].address is required", i)
		}
		if device.Port < 0 || device.Port > 65535 {
			return fmt.Errorf("device[%d].port %d is out of range", i, device.Port)
		}
		for j, s := range device.Services {
			if s.Name == "" {
				return fmt.Errorf("device[%d].services[%d].name is required", i, j)
			}
		}
	}

	return nil
}

// GetDevice returns a device configuration by ID
func (c *Config) GetDevice(id string) (*DeviceConfig, error) {
	for i := range c.Devices {
		if c.Devices[i].ID == id {
			return &c.Devices[i], nil
		}
	}
	return nil, fmt.Errorf("device not found: %s", id)
}

// AddDevice appends device after checking the result is still valid
func (c *Config) AddDevice(device DeviceConfig) error {
	for _, existing := range c.Devices {
		if existing.ID == device.ID {
			return fmt.Errorf("device with ID '%s' already exists", device.ID)
		}
	}

	c.Devices = append(c.Devices, device)
	if err := c.Validate(); err != nil {
		c.Devices = c.Devices[:len(c.Devices)-1]
		return err
	}
	return nil
}

// RemoveDevice drops the device with id
func (c *Config) RemoveDevice(id string) error {
	for i, device := range c.Devices {
		if device.ID == id {
			c.Devices = append(c.Devices[:i], c.Devices[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("device with ID '%s' not found", id)
}

// Save saves the configuration to a YAML file
func (c *Config) Save(filepath string) error {
	return SaveConfig(c, filepath)
}

// SaveConfig saves configuration to a YAML file
func SaveConfig(config *Config, filepath string) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filepath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// NewDefaultConfig creates a default configuration template
func NewDefaultConfig() *Config {
	return &Config{
		Hub: HubConfig{
			ID:          uuid.New().String(),
			Listen:      DefaultListen,
			TokenIssuer: "sonyhub",
		},
		Devices: []DeviceConfig{
			{
				ID:            "living_room_tv",
				Type:          DeviceTypeBravia,
				Address:       "192.168.1.100",
				AccessCode:    "0000",
				WebSocket:     true,
				EventServices: []string{"audio", "system"},
			},
			{
				ID:      "living_room_tv_ip",
				Type:    DeviceTypeSimpleIP,
				Address: "192.168.1.100",
			},
			{
				ID:      "bluray",
				Type:    DeviceTypeDIAL,
				Address: "http://192.168.1.101:50201/dial.xml",
			},
		},
	}
}
