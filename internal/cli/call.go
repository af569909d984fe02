package cli

import (
	"encoding/json"

	"github.com/harun/agentflow/pkg/flowerr"
	"github.com/spf13/cobra"
)

var callParams string

var callCmd = &cobra.Command{
	Use:   "call <tool>",
	Short: "Execute a single tool",
	Long: `Execute one tool through the worker pool and print its result as JSON.

  agentflow call echo --params '{"text":"hello"}'
  agentflow call filesystem::read_file --params '{"path":"README.md"}'`,
	Args: cobra.ExactArgs(1),
	RunE: runCall,
}

func init() {
	callCmd.Flags().StringVar(&callParams, "params", "{}", "tool parameters as a JSON object")
	rootCmd.AddCommand(callCmd)
}

func parseParams(raw string) (map[string]any, error) {
	params := map[string]any{}
	if err := json.Unmarshal([]byte(raw), &params); err != nil {
		return nil, flowerr.Parse("cli.call", "--params must be a JSON object", err)
	}
	if params == nil {
		params = map[string]any{}
	}
	return params, nil
}

func runCall(cmd *cobra.Command, args []string) error {
	params, err := parseParams(callParams)
	if err != nil {
		return err
	}

	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer s.close(cmd.Context())

	sys, err := startSystem(cmd.Context(), s, false)
	if err != nil {
		return err
	}
	defer stopSystem(sys)

	out, err := sys.ExecuteTool(cmd.Context(), args[0], params, nil)
	if err != nil {
		return err
	}
	return writeJSON(cmd.OutOrStdout(), out)
}
