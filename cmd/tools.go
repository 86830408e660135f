package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var (
	toolsRefresh bool
	callParams   []string
)

var toolsCmd = &cobra.Command{
	Use:     "tools <service>",
	Aliases: []string{"info"},
	Short:   "Show the tools, prompts and resources of a service",
	Long: `Shows what a running service advertises. Results are served from the
manager's cache when the service is ON; --refresh forces a new discovery.`,
	Args:              cobra.ExactArgs(1),
	ValidArgsFunction: serviceNameCompletion,
	RunE: func(cmd *cobra.Command, args []string) error {
		printer, err := clientFlags.Printer(cmd)
		if err != nil {
			return err
		}
		entry, err := clientFlags.Client().Capabilities(cmd.Context(), args[0], toolsRefresh)
		if err != nil {
			return err
		}
		return printer.Capabilities(entry)
	},
}

var callCmd = &cobra.Command{
	Use:   "call <service> <tool> [json-arguments]",
	Short: "Call a tool of a running service",
	Long: `Calls one tool and prints its result.

Arguments are given either as one JSON object or as repeated --param key=value
flags. A value that parses as JSON is sent as such, anything else as a string.

Examples:
  local-mcp-manager call filesystem list_directory '{"path": "/tmp"}'
  local-mcp-manager call echo echo --param message=hello`,
	Args:              cobra.RangeArgs(2, 3),
	ValidArgsFunction: serviceNameCompletion,
	RunE: func(cmd *cobra.Command, args []string) error {
		printer, err := clientFlags.Printer(cmd)
		if err != nil {
			return err
		}

		var raw string
		if len(args) == 3 {
			raw = args[2]
		}
		params, err := buildToolParams(raw, callParams)
		if err != nil {
			return err
		}

		result, err := clientFlags.Client().CallTool(cmd.Context(), args[0], args[1], params)
		if err != nil {
			return err
		}
		return printer.Result(result)
	},
}

// buildToolParams merges a JSON object and key=value pairs into one argument object.
// Pairs win over keys of the object.
func buildToolParams(raw string, pairs []string) (json.RawMessage, error) {
	params := map[string]interface{}{}
	if strings.TrimSpace(raw) != "" {
		if err := json.Unmarshal([]byte(raw), &params); err != nil {
			return nil, fmt.Errorf("arguments must be a JSON object: %w", err)
		}
	}
	for _, p := range pairs {
		key, value, ok := strings.Cut(p, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --param %q, expected key=value", p)
		}
		var decoded interface{}
		if err := json.Unmarshal([]byte(value), &decoded); err == nil {
			params[key] = decoded
		} else {
			params[key] = value
		}
	}
	if len(params) == 0 {
		return nil, nil
	}
	return json.Marshal(params)
}

func init() {
	toolsCmd.Flags().BoolVar(&toolsRefresh, "refresh", false, "Force a new discovery")
	callCmd.Flags().StringArrayVarP(&callParams, "param", "p", nil, "Tool argument as key=value (repeatable)")

	rootCmd.AddCommand(toolsCmd, callCmd)
}
