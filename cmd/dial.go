package cmd

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
	"sonyhub/internal/dial"
	"sonyhub/internal/sonynet"
	"sonyhub/internal/transport"
)

var (
	dialURL        string
	dialIgnoreAuth bool
)

var dialCmd = &cobra.Command{
	Use:   "dial",
	Short: "Launch and stop applications over DIAL",
	Long: `Discover and control DIAL applications (YouTube, Netflix...) on Sony
players and TVs. --url is the device's DIAL description, usually
http://<host>:50201/dial.xml.`,
}

func newDIALClient(cmd *cobra.Command) (*dial.Client, func(), error) {
	if dialURL == "" {
		return nil, nil, fmt.Errorf("--url is required")
	}
	u, err := sonynet.ParseDeviceURL(dialURL)
	if err != nil {
		return nil, nil, err
	}
	t, err := transport.NewHTTPTransport(sonynet.BaseURL(u), transport.WithoutAuthFilter())
	if err != nil {
		return nil, nil, err
	}
	c, err := dial.Get(cmd.Context(), t, u.String(), dialIgnoreAuth)
	if err != nil {
		t.Close()
		return nil, nil, err
	}
	return c, func() { t.Close() }, nil
}

var dialAppsCmd = &cobra.Command{
	Use:   "apps",
	Short: "List the applications the device offers",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, done, err := newDIALClient(cmd)
		if err != nil {
			return err
		}
		defer done()

		if id := c.FirstDeviceID(); id != "" {
			cmd.Printf("Device %s\n", id)
		}
		for _, app := range c.Apps() {
			cmd.Printf("  %-30s %s %v\n", app.ID, app.Name, app.Actions)
		}
		return nil
	},
}

var dialStateCmd = &cobra.Command{
	Use:   "state <app>",
	Short: "Show whether an application is running",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, done, err := newDIALClient(cmd)
		if err != nil {
			return err
		}
		defer done()

		state, err := c.AppState(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd, state)
	},
}

func dialSetState(start bool) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		c, done, err := newDIALClient(cmd)
		if err != nil {
			return err
		}
		defer done()

		resp := c.SetState(cmd.Context(), args[0], start)
		if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
			return fmt.Errorf("device answered %s", resp)
		}
		cmd.Printf("%s: %s\n", args[0], resp)
		return nil
	}
}

var dialStartCmd = &cobra.Command{
	Use:   "start <app>",
	Short: "Launch an application",
	Args:  cobra.ExactArgs(1),
	RunE:  dialSetState(true),
}

var dialStopCmd = &cobra.Command{
	Use:   "stop <app>",
	Short: "Stop an application",
	Args:  cobra.ExactArgs(1),
	RunE:  dialSetState(false),
}

func init() {
	dialCmd.PersistentFlags().StringVarP(&dialURL, "url", "u", "", "DIAL description URL")
	dialCmd.PersistentFlags().BoolVar(&dialIgnoreAuth, "ignore-auth", false, "Continue when the app list is forbidden")

	dialCmd.AddCommand(dialAppsCmd)
	dialCmd.AddCommand(dialStateCmd)
	dialCmd.AddCommand(dialStartCmd)
	dialCmd.AddCommand(dialStopCmd)

	rootCmd.AddCommand(dialCmd)
}
