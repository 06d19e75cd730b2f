package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"sonyhub/internal/bravia"
	"sonyhub/internal/ircc"
	"sonyhub/internal/scalarweb"
	"sonyhub/internal/transport"
)

var (
	braviaHost       string
	braviaAccessCode string
	braviaDebug      bool

	braviaCallVersion  string
	braviaCallProtocol string
)

var braviaCmd = &cobra.Command{
	Use:   "bravia",
	Short: "Control Sony Bravia TV",
	Long: `Control Sony Bravia TV using IRCC remote commands and the ScalarWeb API.
Supports remote keys, arbitrary API calls, event monitoring and pairing.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		enableDebug(braviaDebug || verbose)
	},
}

func newBraviaClient(opts ...bravia.ClientOption) (*bravia.BraviaClient, error) {
	if braviaHost == "" {
		return nil, fmt.Errorf("--host is required")
	}
	opts = append([]bravia.ClientOption{bravia.WithAccessCode(braviaAccessCode)}, opts...)
	return bravia.NewBraviaClient(braviaHost, opts...)
}

var braviaRemoteCmd = &cobra.Command{
	Use:   "remote [code]",
	Short: "Send remote control command",
	Long: `Send remote control command to Sony Bravia TV.
The code is either a key name (see 'bravia list remote') or a raw base64 IRCC code.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newBraviaClient()
		if err != nil {
			return err
		}
		defer client.Close()

		code, ok := ircc.Lookup(args[0])
		if !ok {
			code = ircc.Code(args[0])
		}
		if err := client.RemoteRequest(cmd.Context(), code); err != nil {
			return err
		}
		cmd.Printf("Sent %s\n", args[0])
		return nil
	},
}

var braviaCallCmd = &cobra.Command{
	Use:   "call <service> <method> [json-params...]",
	Short: "Call a ScalarWeb API method",
	Long: `Call any ScalarWeb method, for example:
  sonyhub bravia call audio setAudioVolume '{"target":"speaker","volume":"20"}'
Without --version the latest version the TV advertises is used.`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var opts []bravia.ClientOption
		if braviaCallProtocol != "" {
			opts = append(opts,
				bravia.WithServices(scalarweb.NewServiceProtocol(args[0], braviaCallProtocol)),
				bravia.WithWebSocket(strings.EqualFold(braviaCallProtocol, scalarweb.ProtocolWebSocket)))
		}
		client, err := newBraviaClient(opts...)
		if err != nil {
			return err
		}
		defer client.Close()

		params := make([]any, 0, len(args)-2)
		for _, raw := range args[2:] {
			var p any
			if err := json.Unmarshal([]byte(raw), &p); err != nil {
				return fmt.Errorf("parameter %q is not JSON: %w", raw, err)
			}
			params = append(params, p)
		}

		res := client.Call(cmd.Context(), args[0], args[1], braviaCallVersion, params...)
		if res.IsError() {
			return fmt.Errorf("%s.%s failed: %d %s", args[0], args[1], res.DeviceErrorCode(), res.DeviceErrorDesc())
		}
		return printJSON(cmd, res.Results)
	},
}

var braviaEventsCmd = &cobra.Command{
	Use:   "events <service>",
	Short: "Print the notifications a service pushes",
	Long: `Open a websocket to the service, switch on every notification it offers
and print events until interrupted.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newBraviaClient(bravia.WithWebSocket(true),
			bravia.WithServices(scalarweb.NewServiceProtocol(args[0], scalarweb.ProtocolWebSocket)))
		if err != nil {
			return err
		}
		defer client.Close()

		ctx, stop := signalContext(cmd.Context())
		defer stop()

		service, err := client.Service(ctx, args[0])
		if err != nil {
			return err
		}
		if service.Transport().ProtocolType() != transport.ProtocolWebSocket {
			return fmt.Errorf("service %s has no websocket, events can't be received", args[0])
		}

		service.Transport().AddListener(&transport.ListenerFuncs{
			Event: func(event *scalarweb.Event) {
				printJSON(cmd, event)
			},
			Error: func(err error) {
				cmd.PrintErrf("transport error: %v\n", err)
			},
		})

		enabled, err := service.SwitchNotifications(ctx)
		if err != nil {
			return err
		}
		for _, n := range enabled.Enabled {
			cmd.Printf("Listening for %s (%s)\n", n.Name, n.Version)
		}

		<-ctx.Done()
		return nil
	},
}

var braviaRegisterCmd = &cobra.Command{
	Use:   "register",
	Short: "Pair with the TV",
	Long: `Pair this controller with the TV. Without --access-code the TV shows a
PIN; run the command again with --access-code <PIN> to finish.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newBraviaClient()
		if err != nil {
			return err
		}
		defer client.Close()

		result := client.RequestAccess(cmd.Context(), braviaAccessCode)
		cmd.Println(result.String())
		if !result.IsOK() {
			return fmt.Errorf("registration not completed: %s", result.Code)
		}
		return nil
	},
}

var braviaServicesCmd = &cobra.Command{
	Use:   "services",
	Short: "List the ScalarWeb services the TV offers",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newBraviaClient()
		if err != nil {
			return err
		}
		defer client.Close()

		sps, err := client.ServiceProtocols(cmd.Context())
		if err != nil {
			return err
		}
		for _, sp := range sps {
			cmd.Printf("  %-20s %s\n", sp.Name, strings.Join(sp.Protocols, ", "))
		}
		return nil
	},
}

var braviaListCmd = &cobra.Command{
	Use:   "list [type]",
	Short: "List available commands or codes",
	Long:  `List available remote codes or control actions.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		switch args[0] {
		case "remote", "codes":
			cmd.Println("Available remote control codes:")
			for _, name := range ircc.Names() {
				cmd.Printf("  %s\n", name)
			}
		case "control", "actions":
			cmd.Println("Available control actions:")
			for _, name := range bravia.ControlActions() {
				cmd.Printf("  %s\n", name)
			}
		default:
			return fmt.Errorf("unknown list type: %s (use 'remote' or 'control')", args[0])
		}
		return nil
	},
}

func init() {
	braviaCmd.PersistentFlags().StringVarP(&braviaHost, "host", "H", "", "Bravia TV host address")
	braviaCmd.PersistentFlags().StringVarP(&braviaAccessCode, "access-code", "a", "", "Pre-shared key or pairing PIN")
	braviaCmd.PersistentFlags().BoolVarP(&braviaDebug, "debug", "d", false, "Enable debug logging")

	braviaCallCmd.Flags().StringVar(&braviaCallVersion, "version", "", "API version of the method")
	braviaCallCmd.Flags().StringVar(&braviaCallProtocol, "protocol", "", "Force a protocol (xhrpost:jsonizer or websocket:jsonizer)")

	braviaCmd.AddCommand(braviaRemoteCmd)
	braviaCmd.AddCommand(braviaCallCmd)
	braviaCmd.AddCommand(braviaEventsCmd)
	braviaCmd.AddCommand(braviaRegisterCmd)
	braviaCmd.AddCommand(braviaServicesCmd)
	braviaCmd.AddCommand(braviaListCmd)

	rootCmd.AddCommand(braviaCmd)
}
