package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/HorseSword/local-mcp-manager/internal/api"
	"github.com/HorseSword/local-mcp-manager/internal/cli"
	"github.com/HorseSword/local-mcp-manager/internal/supervisor"
)

var statusRefresh bool

// serviceNameCompletion completes the first argument with the names of the running manager.
func serviceNameCompletion(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if len(args) != 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	services, err := cli.NewClient(clientFlags.Endpoint, 2*time.Second).Services(ctx)
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	names := make([]string, 0, len(services))
	for _, s := range services {
		names = append(names, s.Name)
	}
	return names, cobra.ShellCompDirectiveNoFileComp
}

var statusCmd = &cobra.Command{
	Use:     "status",
	Aliases: []string{"list", "ls", "ps"},
	Short:   "List services with their liveness and status",
	Long: `Lists every configured service of the running manager.

ALIVE is whether the service's process is running. STATUS is the capability
state: OFF, LOADING, ON, ERROR or STOPPED. Use --refresh to re-derive liveness
and reconcile statuses before listing.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		printer, err := clientFlags.Printer(cmd)
		if err != nil {
			return err
		}
		c := clientFlags.Client()

		var services []api.ServiceInfo
		if statusRefresh {
			services, err = c.Refresh(cmd.Context())
		} else {
			services, err = c.Services(cmd.Context())
		}
		if err != nil {
			return err
		}
		return printer.Services(services)
	},
}

var startCmd = &cobra.Command{
	Use:               "start <service>",
	Short:             "Start a service",
	Args:              cobra.ExactArgs(1),
	ValidArgsFunction: serviceNameCompletion,
	RunE: func(cmd *cobra.Command, args []string) error {
		var msg string
		err := cli.WithSpinner(clientFlags.Quiet, "Starting "+args[0], func() error {
			var err error
			msg, err = clientFlags.Client().Start(cmd.Context(), args[0])
			return err
		})
		if err != nil {
			return err
		}
		cli.Fprintln(cmd.OutOrStdout(), clientFlags.Quiet, cli.FormatSuccess(msg))
		return nil
	},
}

var stopCmd = &cobra.Command{
	Use:               "stop <service>",
	Short:             "Stop a service",
	Long:              `Stops a service and reports whether its process exited, had to be killed, or survived.`,
	Args:              cobra.ExactArgs(1),
	ValidArgsFunction: serviceNameCompletion,
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		out := cmd.OutOrStdout()

		var report supervisor.StopReport
		err := cli.WithSpinner(clientFlags.Quiet, "Stopping "+name, func() error {
			var err error
			report, err = clientFlags.Client().Stop(cmd.Context(), name)
			return err
		})
		if err != nil {
			return err
		}

		switch {
		case report.AlreadyStopped:
			cli.Fprintln(out, clientFlags.Quiet, cli.FormatWarning(name+" was not running"))
		case report.Survived:
			return fmt.Errorf("process %d of %s is still running after stop", report.PID, name)
		case report.Killed:
			cli.Fprintln(out, clientFlags.Quiet, cli.FormatWarning(fmt.Sprintf("%s stopped (process %d killed)", name, report.PID)))
		default:
			cli.Fprintln(out, clientFlags.Quiet, cli.FormatSuccess("Service "+name+" stopped"))
		}
		return nil
	},
}

var toggleCmd = &cobra.Command{
	Use:               "toggle <service>",
	Short:             "Flip whether a service is started by start-all",
	Args:              cobra.ExactArgs(1),
	ValidArgsFunction: serviceNameCompletion,
	RunE: func(cmd *cobra.Command, args []string) error {
		enabled, err := clientFlags.Client().Toggle(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		state := "disabled"
		if enabled {
			state = "enabled"
		}
		cli.Fprintln(cmd.OutOrStdout(), clientFlags.Quiet, cli.FormatSuccess(args[0]+" "+state))
		return nil
	},
}

var startAllCmd = &cobra.Command{
	Use:   "start-all",
	Short: "Start every enabled service",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		printer, err := clientFlags.Printer(cmd)
		if err != nil {
			return err
		}
		var res api.BulkResult
		err = cli.WithSpinner(clientFlags.Quiet, "Starting enabled services", func() error {
			var err error
			res, err = clientFlags.Client().StartAll(cmd.Context())
			return err
		})
		if err != nil {
			return err
		}
		if err := printer.Bulk("started", res); err != nil {
			return err
		}
		if len(res.Failed) > 0 {
			return fmt.Errorf("%d of %d services failed to start", len(res.Failed), len(res.Failed)+len(res.Succeeded))
		}
		return nil
	},
}

var stopAllCmd = &cobra.Command{
	Use:   "stop-all",
	Short: "Stop every running service and wait for them to exit",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		printer, err := clientFlags.Printer(cmd)
		if err != nil {
			return err
		}
		var res api.BulkResult
		var remaining int
		err = cli.WithSpinner(clientFlags.Quiet, "Stopping all services", func() error {
			out, err := clientFlags.Client().StopAll(cmd.Context())
			res, remaining = out.Result, out.Remaining
			return err
		})
		if err != nil {
			return err
		}
		if err := printer.Bulk("stopped", res); err != nil {
			return err
		}
		if remaining > 0 {
			return fmt.Errorf("%d services still running", remaining)
		}
		return nil
	},
}

func init() {
	statusCmd.Flags().BoolVar(&statusRefresh, "refresh", false, "Re-derive liveness before listing")

	rootCmd.AddCommand(statusCmd, startCmd, stopCmd, toggleCmd, startAllCmd, stopAllCmd)
}
