package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/HorseSword/local-mcp-manager/internal/api"
	"github.com/HorseSword/local-mcp-manager/internal/cli"
	"github.com/HorseSword/local-mcp-manager/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and check service configuration",
}

var configTemplateCmd = &cobra.Command{
	Use:   "template",
	Short: "Print an example service entry",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := fmt.Fprintln(cmd.OutOrStdout(), config.Template())
		return err
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "validate [file]",
	Short: "Check a service file without starting anything",
	Long: `Parses and validates a service file locally: every entry needs an out_port
and either a command or a url, and names and ports must be unique. Templates
in args, env and cwd are rendered. Defaults to mcp_conf.json.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		printer, err := clientFlags.Printer(cmd)
		if err != nil {
			return err
		}
		path := config.DefaultServiceFile
		if len(args) == 1 {
			path = args[0]
		}
		entries, err := config.LoadServices(path)
		if err != nil {
			return err
		}

		services := make([]api.ServiceInfo, 0, len(entries))
		for _, e := range entries {
			t := e.Transport()
			services = append(services, api.ServiceInfo{
				Name:     e.ServiceName(),
				InType:   t.InType(),
				OutType:  api.OutType,
				Host:     e.BindHost(),
				Port:     e.OutPort,
				Endpoint: api.Endpoint(e.BindHost(), e.OutPort),
				Enabled:  e.Enabled(),
			})
		}
		if err := printer.Services(services); err != nil {
			return err
		}
		cli.Fprintln(cmd.ErrOrStderr(), clientFlags.Quiet, cli.FormatSuccess(fmt.Sprintf("%s: %d services valid", path, len(entries))))
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:               "show [service]",
	Short:             "Print the service file of the running manager, or one entry of it",
	Args:              cobra.MaximumNArgs(1),
	ValidArgsFunction: serviceNameCompletion,
	RunE: func(cmd *cobra.Command, args []string) error {
		c := clientFlags.Client()
		out := cmd.OutOrStdout()

		if len(args) == 0 {
			content, err := c.RawConfig(cmd.Context())
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(out, content)
			return err
		}

		doc, err := c.ServiceConfig(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		printer, err := clientFlags.Printer(cmd)
		if err != nil {
			return err
		}
		var entry interface{}
		if err := json.Unmarshal(doc.Config, &entry); err != nil {
			return fmt.Errorf("invalid entry for %s: %w", doc.ID, err)
		}
		return printer.JSONOrYAML(map[string]interface{}{doc.ID: entry})
	},
}

var configReloadCmd = &cobra.Command{
	Use:   "reload",
	Short: "Make the running manager re-read its service file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		reloaded, err := clientFlags.Client().Reload(cmd.Context())
		if err != nil {
			return err
		}
		msg := "Configuration unchanged"
		if reloaded {
			msg = "Configuration reloaded"
		}
		cli.Fprintln(cmd.OutOrStdout(), clientFlags.Quiet, cli.FormatSuccess(msg))
		return nil
	},
}

func init() {
	configCmd.AddCommand(configTemplateCmd, configValidateCmd, configShowCmd, configReloadCmd)
	rootCmd.AddCommand(configCmd)
}
