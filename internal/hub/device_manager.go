package hub

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"sonyhub/internal/bravia"
	"sonyhub/internal/device"
	"sonyhub/internal/dial"
	"sonyhub/internal/logger"
	"sonyhub/internal/scalarweb"
	"sonyhub/internal/simpleip"
	"sonyhub/internal/sonynet"
	"sonyhub/internal/transport"
)

// DeviceBuilder creates a device from its configuration
type DeviceBuilder func(cfg DeviceConfig) (device.Device, error)

// DeviceManager manages the lifecycle and access to devices
type DeviceManager struct {
	devices    map[string]device.Device
	config     *Config
	builders   map[string]DeviceBuilder
	mutex      sync.RWMutex
	logger     zerolog.Logger
	nonceCache *NonceCache
}

// ManagerOption configures a DeviceManager
type ManagerOption func(*DeviceManager)

// WithDeviceBuilder replaces the builder used for deviceType
func WithDeviceBuilder(deviceType string, builder DeviceBuilder) ManagerOption {
	return func(dm *DeviceManager) {
		dm.builders[deviceType] = builder
	}
}

// NewDeviceManager creates a new device manager
func NewDeviceManager(config *Config, opts ...ManagerOption) *DeviceManager {
	dm := &DeviceManager{
		devices: make(map[string]device.Device),
		config:  config,
		builders: map[string]DeviceBuilder{
			DeviceTypeBravia:   newBraviaDevice,
			DeviceTypeDIAL:     newDIALDevice,
			DeviceTypeSimpleIP: newSimpleIPDevice,
		},
		logger:     logger.Component("device_manager"),
		nonceCache: NewNonceCache(defaultNoncesPerDevice, defaultNonceExpiration),
	}
	for _, opt := range opts {
		opt(dm)
	}
	return dm
}

// Initialize builds every configured device. Devices with background work
// are started with ctx.
func (dm *DeviceManager) Initialize(ctx context.Context) error {
	dm.mutex.Lock()
	defer dm.mutex.Unlock()

	dm.logger.Info().
		Int("device_count", len(dm.config.Devices)).
		Msg("Initializing devices")

	for _, deviceConfig := range dm.config.Devices {
		dev, err := dm.createDevice(deviceConfig)
		if err != nil {
			dm.logger.Error().
				Str("device_id", deviceConfig.ID).
				Err(err).
				Msg("Failed to create device")
			dm.closeAll()
			return fmt.Errorf("failed to create device %s: %w", deviceConfig.ID, err)
		}

		if starter, ok := dev.(device.Starter); ok {
			if err := starter.Start(ctx); err != nil {
				dm.logger.Warn().Err(err).Str("device_id", deviceConfig.ID).Msg("Failed to start device")
			}
		}

		dm.devices[deviceConfig.ID] = dev
		dm.logger.Info().
			Str("device_id", deviceConfig.ID).
			Str("device_type", deviceConfig.Type).
			Str("device_address", deviceConfig.Address).
			Msg("Device initialized successfully")
	}

	return nil
}

func (dm *DeviceManager) createDevice(cfg DeviceConfig) (device.Device, error) {
	builder, ok := dm.builders[cfg.Type]
	if !ok {
		return nil, fmt.Errorf("unsupported device type: %s", cfg.Type)
	}
	return builder(cfg)
}

func newBraviaDevice(cfg DeviceConfig) (device.Device, error) {
	opts := []bravia.ClientOption{
		bravia.WithAccessCode(cfg.AccessCode),
		bravia.WithAutoAuth(cfg.AutoAuth),
		bravia.WithWebSocket(cfg.WebSocket),
	}
	if cfg.MAC != "" {
		opts = append(opts, bravia.WithMACAddress(cfg.MAC))
	}
	if cfg.IRCCURL != "" {
		opts = append(opts, bravia.WithIRCCURL(cfg.IRCCURL))
	}
	for _, s := range cfg.Services {
		opts = append(opts, bravia.WithServices(scalarweb.NewServiceProtocol(s.Name, s.Protocols...)))
	}

	client, err := bravia.NewBraviaClient(cfg.Address, opts...)
	if err != nil {
		return nil, err
	}
	return bravia.NewBraviaRemote(cfg.ID, client, bravia.WithEventServices(cfg.EventServices...)), nil
}

func newSimpleIPDevice(cfg DeviceConfig) (device.Device, error) {
	var opts []simpleip.ClientOption
	if cfg.MAC != "" {
		opts = append(opts, simpleip.WithMACAddress(cfg.MAC))
	}
	return simpleip.NewRemote(cfg.ID, simpleip.NewClient(cfg.Address, cfg.Port, opts...)), nil
}

func newDIALDevice(cfg DeviceConfig) (device.Device, error) {
	u, err := sonynet.ParseDeviceURL(cfg.Address)
	if err != nil {
		return nil, err
	}
	t, err := transport.NewHTTPTransport(sonynet.BaseURL(u), transport.WithoutAuthFilter())
	if err != nil {
		return nil, err
	}
	if cfg.AccessCode != "" {
		t.SetOption(transport.NewHeader(sonynet.AccessCodeHeader(cfg.AccessCode)))
	}
	return dial.NewRemote(cfg.ID, u.String(), t, false), nil
}

// GetDevice returns a device by ID
func (dm *DeviceManager) GetDevice(id string) (device.Device, error) {
	dm.mutex.RLock()
	defer dm.mutex.RUnlock()

	dev, exists := dm.devices[id]
	if !exists {
		return nil, fmt.Errorf("device not found: %s", id)
	}
	return dev, nil
}

// GetAllDeviceInfo returns information for all devices, sorted by id
func (dm *DeviceManager) GetAllDeviceInfo() []device.DeviceInfo {
	dm.mutex.RLock()
	defer dm.mutex.RUnlock()

	infos := make([]device.DeviceInfo, 0, len(dm.devices))
	for _, dev := range dm.devices {
		infos = append(infos, dev.GetDeviceInfo())
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}

// GetDeviceEvents returns the recent events of a device. Devices that don't
// record events return an empty list.
func (dm *DeviceManager) GetDeviceEvents(id string) ([]device.Event, error) {
	dev, err := dm.GetDevice(id)
	if err != nil {
		return nil, err
	}
	if source, ok := dev.(device.EventSource); ok {
		return source.RecentEvents(), nil
	}
	return []device.Event{}, nil
}

// ProcessDeviceAction runs an action on a device. Failures are reported in
// the response rather than as an error.
func (dm *DeviceManager) ProcessDeviceAction(ctx context.Context, deviceID string, actionJSON []byte) *device.ActionResponse {
	dev, err := dm.GetDevice(deviceID)
	if err != nil {
		return device.Failed("Device not found: %s", deviceID)
	}

	dm.logger.Debug().
		Str("device_id", deviceID).
		RawJSON("action", actionJSON).
		Msg("Processing device action")

	start := time.Now()
	response, err := dev.Process(ctx, actionJSON)
	if err != nil {
		dm.logger.Error().
			Str("device_id", deviceID).
			Err(err).
			Msg("Device action processing failed")
		return device.Failed("Action processing failed: %v", err)
	}

	dm.logger.Info().
		Str("device_id", deviceID).
		Bool("success", response.Success).
		Dur("took", time.Since(start)).
		Msg("Device action processed")

	return response
}

// ProcessDeviceActionWithNonce is ProcessDeviceAction with replay protection:
// a nonce seen before returns the earlier response without touching the
// device.
func (dm *DeviceManager) ProcessDeviceActionWithNonce(ctx context.Context, deviceID, nonce string, actionJSON []byte) *device.ActionResponse {
	if cached, found := dm.nonceCache.Lookup(deviceID, nonce); found {
		dm.logger.Info().
			Str("device_id", deviceID).
			Str("nonce", nonce).
			Msg("Returning cached response for duplicate nonce")
		return cached
	}

	if nonce != "" && !ValidateNonce(nonce) {
		dm.logger.Warn().
			Str("device_id", deviceID).
			Str("nonce", nonce).
			Msg("Invalid nonce format")
		return device.Failed("Invalid nonce format")
	}

	response := dm.ProcessDeviceAction(ctx, deviceID, actionJSON)
	dm.nonceCache.Store(deviceID, nonce, response)
	return response
}

// NonceStats returns nonce cache statistics
func (dm *DeviceManager) NonceStats() map[string]interface{} {
	return dm.nonceCache.Stats()
}

// GetDeviceCount returns the number of managed devices
func (dm *DeviceManager) GetDeviceCount() int {
	dm.mutex.RLock()
	defer dm.mutex.RUnlock()
	return len(dm.devices)
}

func (dm *DeviceManager) closeAll() {
	for id, dev := range dm.devices {
		if err := dev.Close(); err != nil {
			dm.logger.Debug().Err(err).Str("device_id", id).Msg("Failed to close device")
		}
		dm.nonceCache.ClearDevice(id)
	}
	dm.devices = make(map[string]device.Device)
}

// Reload closes every device and builds them again from newConfig
func (dm *DeviceManager) Reload(ctx context.Context, newConfig *Config) error {
	dm.logger.Info().Msg("Reloading device manager with new configuration")

	dm.mutex.Lock()
	dm.closeAll()
	dm.config = newConfig
	dm.mutex.Unlock()

	return dm.Initialize(ctx)
}

// Shutdown closes every device and the nonce cache
func (dm *DeviceManager) Shutdown() {
	dm.mutex.Lock()
	defer dm.mutex.Unlock()

	dm.logger.Info().
		Int("device_count", len(dm.devices)).
		Msg("Shutting down device manager")

	dm.closeAll()
	dm.nonceCache.Shutdown()
}
