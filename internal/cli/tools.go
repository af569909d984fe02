package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/harun/agentflow/pkg/toolregistry"
	"github.com/spf13/cobra"
)

var toolsJSON bool

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List available tools",
	Long: `Start the configured MCP servers and list every tool in the merged
namespace. Remote tools that collide with an earlier name are shown as
server::tool.`,
	Args: cobra.NoArgs,
	RunE: runTools,
}

func init() {
	toolsCmd.Flags().BoolVar(&toolsJSON, "json", false, "print the planner catalog as JSON")
	rootCmd.AddCommand(toolsCmd)
}

func runTools(cmd *cobra.Command, args []string) error {
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

	if toolsJSON {
		return writeJSON(cmd.OutOrStdout(), sys.Catalog())
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tSOURCE\tDESCRIPTION")
	for _, d := range sys.Descriptors() {
		switch d := d.(type) {
		case toolregistry.LocalDescriptor:
			fmt.Fprintf(w, "%s\tlocal\t%s\n", d.Name, d.Description)
		case toolregistry.RemoteDescriptor:
			fmt.Fprintf(w, "%s\t%s\t%s\n", d.Name, d.ServerName, d.Description)
		}
	}
	return w.Flush()
}
