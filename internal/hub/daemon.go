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
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"sonyhub/internal/api"
	"sonyhub/internal/logger"
)

const (
	healthCheckInterval = time.Minute
	shutdownTimeout     = 5 * time.Second
)

// Daemon runs the device manager behind the HTTP API
type Daemon struct {
	config        *Config
	configPath    string
	deviceManager *DeviceManager
	api           *api.Server
	logger        zerolog.Logger

	mutex   sync.RWMutex
	running bool
	runCtx  context.Context
}

// NewDaemon loads configPath and prepares the daemon
func NewDaemon(configPath string, opts ...ManagerOption) (*Daemon, error) {
	config, err := LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return newDaemon(config, configPath, opts...), nil
}

func newDaemon(config *Config, configPath string, opts ...ManagerOption) *Daemon {
	d := &Daemon{
		config:        config,
		configPath:    configPath,
		deviceManager: NewDeviceManager(config, opts...),
		logger:        logger.Component("hub").With().Str("hub_id", config.Hub.ID).Logger(),
	}

	serverOpts := []api.ServerOption{api.WithHubID(config.Hub.ID), api.WithReloader(d)}
	if config.Hub.TokenSecret != "" {
		serverOpts = append(serverOpts, api.WithJWT(d.JWTService(0)))
	}
	d.api = api.NewServer(d.deviceManager, serverOpts...)
	return d
}

// JWTService returns a token service for the configured secret
func (d *Daemon) JWTService(expiry time.Duration) *api.JWTService {
	return api.NewJWTService(d.config.Hub.TokenSecret, d.config.Hub.TokenIssuer, expiry)
}

// DeviceManager returns the daemon's device manager
func (d *Daemon) DeviceManager() *DeviceManager {
	return d.deviceManager
}

// Run starts the devices and the API and blocks until ctx ends or the
// process receives SIGINT/SIGTERM. SIGHUP reloads the configuration.
func (d *Daemon) Run(ctx context.Context) error {
	d.mutex.Lock()
	if d.running {
		d.mutex.Unlock()
		return fmt.Errorf("daemon is already running")
	}
	d.running = true
	d.mutex.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	d.mutex.Lock()
	d.runCtx = ctx
	d.mutex.Unlock()

	d.logger.Info().
		Str("listen", d.config.Hub.Listen).
		Msg("Starting sonyhub daemon")

	if err := d.deviceManager.Initialize(ctx); err != nil {
		d.setStopped()
		return fmt.Errorf("failed to initialize devices: %w", err)
	}

	apiErr := make(chan error, 1)
	go func() {
		apiErr <- d.api.Start(d.config.Hub.Listen)
	}()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(signals)

	ticker := time.NewTicker(healthCheckInterval)
	defer ticker.Stop()

	d.logger.Info().
		Int("device_count", d.deviceManager.GetDeviceCount()).
		Msg("Hub daemon started successfully")

	for {
		select {
		case sig := <-signals:
			if sig == syscall.SIGHUP {
				if err := d.ReloadConfig(ctx); err != nil {
					d.logger.Error().Err(err).Msg("Failed to reload configuration")
				}
				continue
			}
			d.logger.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
			return d.stop()
		case err := <-apiErr:
			d.stop()
			if err != nil {
				return fmt.Errorf("api server failed: %w", err)
			}
			return nil
		case <-ctx.Done():
			d.logger.Info().Msg("Context cancelled")
			return d.stop()
		case <-ticker.C:
			d.logger.Info().
				Int("device_count", d.deviceManager.GetDeviceCount()).
				Interface("nonce_cache", d.deviceManager.NonceStats()).
				Msg("Health check completed")
		}
	}
}

func (d *Daemon) setStopped() {
	d.mutex.Lock()
	d.running = false
	d.mutex.Unlock()
}

func (d *Daemon) stop() error {
	d.logger.Info().Msg("Stopping hub daemon")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err := d.api.Stop(ctx)
	if err != nil {
		d.logger.Error().Err(err).Msg("Error stopping API server")
	}
	d.deviceManager.Shutdown()
	d.setStopped()

	d.logger.Info().Msg("Hub daemon stopped")
	return err
}

// IsRunning returns whether the daemon is currently running
func (d *Daemon) IsRunning() bool {
	d.mutex.RLock()
	defer d.mutex.RUnlock()
	return d.running
}

// ReloadConfig reads the configuration file again and rebuilds the devices.
// Listen address and token changes need a restart. While the daemon runs,
// rebuilt devices live as long as the daemon rather than ctx.
func (d *Daemon) ReloadConfig(ctx context.Context) error {
	d.mutex.RLock()
	if d.running && d.runCtx != nil {
		ctx = d.runCtx
	}
	d.mutex.RUnlock()

	d.logger.Info().
		Str("config_path", d.configPath).
		Msg("Reloading configuration")

	newConfig, err := LoadConfig(d.configPath)
	if err != nil {
		return fmt.Errorf("failed to load new config: %w", err)
	}
	newConfig.Hub = d.config.Hub
	d.config = newConfig

	if err := d.deviceManager.Reload(ctx, newConfig); err != nil {
		return fmt.Errorf("failed to reload device manager: %w", err)
	}

	d.logger.Info().Int("device_count", d.deviceManager.GetDeviceCount()).Msg("Configuration reloaded successfully")
	return nil
}
