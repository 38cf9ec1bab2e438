// Package cli implements the txhealth command line tool.
package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type app struct {
	v   *viper.Viper
	out io.Writer
}

// NewRootCmd builds the command tree. Flags are bound to viper so every flag
// can also come from a TXHEALTH_* environment variable.
func NewRootCmd(out io.Writer) *cobra.Command {
	a := &app{v: viper.New(), out: out}

	root := &cobra.Command{
		Use:   "txhealth",
		Short: "Payment transaction health from the command line",
		Long: `txhealth shows success/decline rates per time bucket for the last hour,
24 hours or 7 days, either from a running payment-health server or from a
local JSON file of transaction events.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.initConfig()
		},
	}
	root.SetOut(out)

	pf := root.PersistentFlags()
	pf.String("api-url", "http://localhost:8080", "payment-health server URL")
	pf.String("timezone", "UTC", "timezone for labels when computing locally")
	pf.StringP("output", "o", "table", "output format: table, json or yaml")
	pf.Duration("timeout", 15*time.Second, "request timeout")
	a.v.BindPFlag("api_url", pf.Lookup("api-url"))
	a.v.BindPFlag("timezone", pf.Lookup("timezone"))
	a.v.BindPFlag("output", pf.Lookup("output"))
	a.v.BindPFlag("timeout", pf.Lookup("timeout"))

	root.AddCommand(a.dashboardCmd(), a.hoverCmd(), a.chartCmd())
	return root
}

// Execute runs the CLI against os.Args.
func Execute() error {
	return NewRootCmd(os.Stdout).Execute()
}

func (a *app) initConfig() error {
	a.v.SetEnvPrefix("TXHEALTH")
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()

	switch a.output() {
	case "table", "json", "yaml":
	default:
		return fmt.Errorf("unknown output format %q", a.v.GetString("output"))
	}
	if _, err := a.location(); err != nil {
		return err
	}
	return nil
}

func (a *app) output() string {
	return strings.ToLower(strings.TrimSpace(a.v.GetString("output")))
}

func (a *app) location() (*time.Location, error) {
	tz := strings.TrimSpace(a.v.GetString("timezone"))
	if tz == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", tz, err)
	}
	return loc, nil
}

func (a *app) client() *apiClient {
	return newAPIClient(a.v.GetString("api_url"), a.v.GetDuration("timeout"))
}
