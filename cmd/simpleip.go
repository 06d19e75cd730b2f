package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"sonyhub/internal/simpleip"
)

var (
	simpleIPHost string
	simpleIPPort int
	simpleIPMAC  string
)

var simpleIPCmd = &cobra.Command{
	Use:   "simpleip",
	Short: "Control a Sony display over the Simple IP port",
	Long: `Control Sony displays over the Simple IP control protocol (TCP port
20060 by default). Commands without a value query the current state.`,
}

func newSimpleIPClient() (*simpleip.Client, error) {
	if simpleIPHost == "" {
		return nil, fmt.Errorf("--host is required")
	}
	var opts []simpleip.ClientOption
	if simpleIPMAC != "" {
		opts = append(opts, simpleip.WithMACAddress(simpleIPMAC))
	}
	return simpleip.NewClient(simpleIPHost, simpleIPPort, opts...), nil
}

func parseOnOff(s string) (bool, error) {
	switch s {
	case "on", "true", "1":
		return true, nil
	case "off", "false", "0":
		return false, nil
	}
	return false, fmt.Errorf("expected on or off, got %q", s)
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}

var simpleIPPowerCmd = &cobra.Command{
	Use:   "power [on|off]",
	Short: "Query or set the power state",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newSimpleIPClient()
		if err != nil {
			return err
		}
		if len(args) == 0 {
			on, err := c.Power(cmd.Context())
			if err != nil {
				return err
			}
			cmd.Printf("power: %s\n", onOff(on))
			return nil
		}
		on, err := parseOnOff(args[0])
		if err != nil {
			return err
		}
		return c.SetPower(cmd.Context(), on)
	},
}

var simpleIPVolumeCmd = &cobra.Command{
	Use:   "volume [level]",
	Short: "Query or set the volume",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newSimpleIPClient()
		if err != nil {
			return err
		}
		if len(args) == 0 {
			v, err := c.Volume(cmd.Context())
			if err != nil {
				return err
			}
			cmd.Printf("volume: %d\n", v)
			return nil
		}
		level, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid volume %q: %w", args[0], err)
		}
		return c.SetVolume(cmd.Context(), level)
	},
}

var simpleIPMuteCmd = &cobra.Command{
	Use:   "mute [on|off]",
	Short: "Query or set audio mute",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newSimpleIPClient()
		if err != nil {
			return err
		}
		if len(args) == 0 {
			muted, err := c.Muted(cmd.Context())
			if err != nil {
				return err
			}
			cmd.Printf("mute: %s\n", onOff(muted))
			return nil
		}
		on, err := parseOnOff(args[0])
		if err != nil {
			return err
		}
		return c.SetMute(cmd.Context(), on)
	},
}

var simpleIPIRCCCmd = &cobra.Command{
	Use:   "ircc <code>",
	Short: "Send a numeric IR code",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newSimpleIPClient()
		if err != nil {
			return err
		}
		code, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid IR code %q: %w", args[0], err)
		}
		return c.SendIRCC(cmd.Context(), code)
	},
}

var simpleIPInputCmd = &cobra.Command{
	Use:   "input [type] [port]",
	Short: "Query or select the input, e.g. 'input hdmi 2'",
	Args:  cobra.MaximumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newSimpleIPClient()
		if err != nil {
			return err
		}
		if len(args) == 0 {
			input, err := c.Input(cmd.Context())
			if err != nil {
				return err
			}
			cmd.Printf("input: %s\n", input)
			return nil
		}
		input := args[0]
		if len(args) == 2 {
			input += " " + args[1]
		}
		return c.SetInput(cmd.Context(), input)
	},
}

var simpleIPPictureMuteCmd = &cobra.Command{
	Use:   "picture-mute <on|off>",
	Short: "Blank or restore the picture",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newSimpleIPClient()
		if err != nil {
			return err
		}
		on, err := parseOnOff(args[0])
		if err != nil {
			return err
		}
		return c.SetPictureMute(cmd.Context(), on)
	},
}

var simpleIPSceneCmd = &cobra.Command{
	Use:   "scene <name>",
	Short: "Select a picture scene, e.g. 'scene cinema'",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newSimpleIPClient()
		if err != nil {
			return err
		}
		return c.SetScene(cmd.Context(), args[0])
	},
}

var simpleIPMACCmd = &cobra.Command{
	Use:   "mac [eth0|wlan0]",
	Short: "Print the MAC address of a network interface",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newSimpleIPClient()
		if err != nil {
			return err
		}
		iface := "eth0"
		if len(args) == 1 {
			iface = args[0]
		}
		mac, err := c.MACAddress(cmd.Context(), iface)
		if err != nil {
			return err
		}
		cmd.Printf("%s: %s\n", iface, mac)
		return nil
	},
}

var simpleIPListenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Print notifications until interrupted",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newSimpleIPClient()
		if err != nil {
			return err
		}
		c.AddListener(func(msg simpleip.Message) {
			cmd.Println(msg.String())
		})

		ctx, stop := signalContext(cmd.Context())
		defer stop()

		cmd.Printf("Listening on %s\n", c.Address())
		if err := c.Listen(ctx); err != nil && ctx.Err() == nil {
			return err
		}
		return nil
	},
}

func init() {
	simpleIPCmd.PersistentFlags().StringVarP(&simpleIPHost, "host", "H", "", "Display host address")
	simpleIPCmd.PersistentFlags().IntVarP(&simpleIPPort, "port", "p", simpleip.DefaultPort, "Simple IP port")
	simpleIPCmd.PersistentFlags().StringVar(&simpleIPMAC, "mac", "", "MAC address for wake-on-lan")

	simpleIPCmd.AddCommand(simpleIPPowerCmd)
	simpleIPCmd.AddCommand(simpleIPVolumeCmd)
	simpleIPCmd.AddCommand(simpleIPMuteCmd)
	simpleIPCmd.AddCommand(simpleIPIRCCCmd)
	simpleIPCmd.AddCommand(simpleIPInputCmd)
	simpleIPCmd.AddCommand(simpleIPPictureMuteCmd)
	simpleIPCmd.AddCommand(simpleIPSceneCmd)
	simpleIPCmd.AddCommand(simpleIPMACCmd)
	simpleIPCmd.AddCommand(simpleIPListenCmd)

	rootCmd.AddCommand(simpleIPCmd)
}
