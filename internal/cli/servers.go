package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/harun/agentflow/pkg/mcp"
	"github.com/spf13/cobra"
)

var serversCheck bool

var serversCmd = &cobra.Command{
	Use:   "servers",
	Short: "Inspect MCP servers",
}

var serversStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Start the configured servers and report their status",
	Args:  cobra.NoArgs,
	RunE:  runServersStatus,
}

func init() {
	serversStatusCmd.Flags().BoolVar(&serversCheck, "check", false, "ping every running server")
	serversCmd.AddCommand(serversStatusCmd)
	rootCmd.AddCommand(serversCmd)
}

func runServersStatus(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer s.close(cmd.Context())

	if len(s.cfg.Servers) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No servers configured")
		return nil
	}

	sys, err := startSystem(cmd.Context(), s, false)
	if err != nil {
		return err
	}
	defer stopSystem(sys)

	var failures map[string]error
	if serversCheck {
		failures = sys.CheckHealth(cmd.Context())
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tTYPE\tSTATUS\tUPTIME\tREMOTE\tHEALTH")
	for _, st := range sys.ServerStatuses() {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			st.Name, st.Type, st.Status, uptime(st), remoteName(st.Remote), health(st, failures))
	}
	return w.Flush()
}

func uptime(st mcp.ServerStatus) string {
	if st.StartedAt.IsZero() || st.Status.State != mcp.StateConnected {
		return "-"
	}
	return formatDuration(time.Since(st.StartedAt))
}

func remoteName(info mcp.ServerInfo) string {
	if info.Name == "" {
		return "-"
	}
	if info.Version == "" {
		return info.Name
	}
	return info.Name + "@" + info.Version
}

func health(st mcp.ServerStatus, failures map[string]error) string {
	if failures == nil || st.Status.State != mcp.StateConnected {
		return "-"
	}
	if err, failed := failures[st.Name]; failed {
		return "failing: " + err.Error()
	}
	return "ok"
}
