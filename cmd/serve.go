package cmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"sonyhub/internal/api"
	"sonyhub/internal/hub"
	"sonyhub/internal/logger"
)

var (
	hubConfigPath string
	hubDebugFlag  bool

	tokenSecret  string
	tokenIssuer  string
	tokenSubject string
	tokenHours   int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the sonyhub daemon",
	Long: `Run the hub daemon: build every device in the configuration file and
serve them over the HTTP API. A missing configuration file is created with
example settings. SIGHUP reloads the device list.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger.SetSilentMode(false)
		if hubDebugFlag || verbose {
			logger.SetLevel(logger.LOG_DEBUG)
		} else {
			logger.SetLevel(logger.LOG_INFO)
		}

		log := logger.Component("serve")
		log.Info().
			Str("config_path", hubConfigPath).
			Msg("Starting sonyhub daemon")

		if _, err := os.Stat(hubConfigPath); os.IsNotExist(err) {
			if err := hub.SaveConfig(hub.NewDefaultConfig(), hubConfigPath); err != nil {
				return fmt.Errorf("failed to create default config file: %w", err)
			}
			log.Info().
				Str("config_path", hubConfigPath).
				Msg("Created default configuration file. Please edit it with your settings.")
			return nil
		}

		daemon, err := hub.NewDaemon(hubConfigPath)
		if err != nil {
			return fmt.Errorf("failed to create hub daemon: %w", err)
		}

		if err := daemon.Run(cmd.Context()); err != nil {
			log.Error().Err(err).Msg("Hub daemon stopped with error")
			return fmt.Errorf("hub daemon error: %w", err)
		}
		return nil
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage hub configuration",
	Long:  `Generate or validate hub configuration files.`,
}

var configGenerateCmd = &cobra.Command{
	Use:   "generate [config-file]",
	Short: "Generate default configuration file",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath := hubConfigPath
		if len(args) > 0 {
			configPath = args[0]
		}

		if err := hub.SaveConfig(hub.NewDefaultConfig(), configPath); err != nil {
			return fmt.Errorf("failed to save default config: %w", err)
		}

		cmd.Printf("Default configuration saved to: %s\n", configPath)
		cmd.Println("Please edit the file with your actual device settings.")
		return nil
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "validate [config-file]",
	Short: "Validate configuration file",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath := hubConfigPath
		if len(args) > 0 {
			configPath = args[0]
		}

		config, err := hub.LoadConfig(configPath)
		if err != nil {
			return fmt.Errorf("configuration validation failed: %w", err)
		}

		cmd.Printf("Configuration file is valid: %s\n", configPath)
		cmd.Printf("Hub %s listening on %s\n", config.Hub.ID, config.Hub.Listen)
		cmd.Printf("Configured devices: %d\n", len(config.Devices))
		for _, device := range config.Devices {
			cmd.Printf("  - %s (%s) at %s\n", device.ID, device.Type, device.Address)
		}
		return nil
	},
}

var (
	addDevice  hub.DeviceConfig
	addService []string
)

var configAddCmd = &cobra.Command{
	Use:   "add <id> <type> <address>",
	Short: "Add a device to the configuration",
	Long: `Add a device. Type is bravia, dial or simpleip. --service takes
name=protocol[,protocol...] and may be repeated.`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		config, err := hub.LoadConfig(hubConfigPath)
		if err != nil {
			return err
		}

		device := addDevice
		device.ID, device.Type, device.Address = args[0], args[1], args[2]
		for _, raw := range addService {
			name, protocols, _ := strings.Cut(raw, "=")
			sc := hub.ServiceConfig{Name: name}
			if protocols != "" {
				sc.Protocols = strings.Split(protocols, ",")
			}
			device.Services = append(device.Services, sc)
		}

		if err := config.AddDevice(device); err != nil {
			return err
		}
		if err := config.Save(hubConfigPath); err != nil {
			return err
		}
		cmd.Printf("Added %s (%s) at %s\n", device.ID, device.Type, device.Address)
		return nil
	},
}

var configRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Remove a device from the configuration",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		config, err := hub.LoadConfig(hubConfigPath)
		if err != nil {
			return err
		}
		if err := config.RemoveDevice(args[0]); err != nil {
			return err
		}
		if err := config.Save(hubConfigPath); err != nil {
			return err
		}
		cmd.Printf("Removed %s\n", args[0])
		return nil
	},
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a bearer token for the hub API",
	Long: `Mint a JWT for the hub API. The secret must match hub.token_secret in
the daemon's configuration.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if tokenSecret == "" {
			return fmt.Errorf("--secret is required")
		}
		j := api.NewJWTService(tokenSecret, tokenIssuer, time.Duration(tokenHours)*time.Hour)
		token, err := j.GenerateToken(tokenSubject)
		if err != nil {
			return err
		}
		cmd.Println(token)
		return nil
	},
}

func init() {
	serveCmd.Flags().StringVarP(&hubConfigPath, "config", "c", "sonyhub.yml", "Path to hub configuration file")
	serveCmd.Flags().BoolVarP(&hubDebugFlag, "debug", "d", false, "Enable debug logging")

	configCmd.PersistentFlags().StringVarP(&hubConfigPath, "config", "c", "sonyhub.yml", "Path to configuration file")
	configCmd.AddCommand(configGenerateCmd)
	configCmd.AddCommand(configValidateCmd)
	configCmd.AddCommand(configAddCmd)
	configCmd.AddCommand(configRemoveCmd)

	configAddCmd.Flags().StringVar(&addDevice.AccessCode, "access-code", "", "Pre-shared key or pairing PIN")
	configAddCmd.Flags().StringVar(&addDevice.MAC, "mac", "", "MAC address for wake-on-lan")
	configAddCmd.Flags().BoolVar(&addDevice.AutoAuth, "auto-auth", false, "Register a cookie before each request")
	configAddCmd.Flags().BoolVar(&addDevice.WebSocket, "websocket", false, "Use websockets where the TV offers them")
	configAddCmd.Flags().StringVar(&addDevice.IRCCURL, "ircc-url", "", "IRCC control URL")
	configAddCmd.Flags().IntVar(&addDevice.Port, "port", 0, "Simple IP port")
	configAddCmd.Flags().StringSliceVar(&addDevice.EventServices, "events", nil, "Services whose notifications are recorded")
	configAddCmd.Flags().StringArrayVar(&addService, "service", nil, "Known service as name=protocol[,protocol]")

	tokenCmd.Flags().StringVar(&tokenSecret, "secret", "", "Signing secret (hub.token_secret)")
	tokenCmd.Flags().StringVar(&tokenIssuer, "issuer", "sonyhub", "Token issuer (hub.token_issuer)")
	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "sonyhub-cli", "Token subject")
	tokenCmd.Flags().IntVar(&tokenHours, "hours", 24, "Hours until the token expires")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(tokenCmd)
}
