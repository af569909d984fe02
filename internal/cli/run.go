package cli

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/harun/agentflow/internal/config"
	"github.com/harun/agentflow/pkg/agent"
	"github.com/spf13/cobra"
)

var (
	runPlanner      string
	runParallel     bool
	runContinue     bool
	runNoSynthesize bool
	runJSON         bool
)

var runCmd = &cobra.Command{
	Use:   "run <task>",
	Short: "Plan a task and execute it",
	Long: `Plan the task with the configured language model, execute the plan
through the worker pool and print the synthesized answer.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&runPlanner, "planner", "", "planner to use (multi_step, chain_of_thought, htn, monte_carlo)")
	runCmd.Flags().BoolVar(&runParallel, "parallel", false, "execute plan steps concurrently")
	runCmd.Flags().BoolVar(&runContinue, "continue-on-error", false, "keep executing after a failed step")
	runCmd.Flags().BoolVar(&runNoSynthesize, "no-synthesize", false, "print raw step results instead of a synthesized answer")
	runCmd.Flags().BoolVar(&runJSON, "json", false, "print the run report as JSON")
	rootCmd.AddCommand(runCmd)
}

type stepReport struct {
	Step       int            `json:"step"`
	Tool       string         `json:"tool"`
	Params     map[string]any `json:"params"`
	Result     any            `json:"result,omitempty"`
	Error      string         `json:"error,omitempty"`
	DurationMS int64          `json:"duration_ms"`
}

type runReport struct {
	Task       string       `json:"task"`
	Planner    string       `json:"planner"`
	Steps      []stepReport `json:"steps"`
	Output     string       `json:"output,omitempty"`
	DurationMS int64        `json:"duration_ms"`
	Error      string       `json:"error,omitempty"`
}

func newRunReport(result *agent.RunResult, runErr error) runReport {
	report := runReport{
		Task:       result.Task,
		Planner:    result.Planner,
		Steps:      make([]stepReport, 0, len(result.Steps)),
		Output:     result.Output,
		DurationMS: result.Duration.Milliseconds(),
	}
	for _, s := range result.Steps {
		sr := stepReport{
			Step:       s.Step,
			Tool:       s.ToolName,
			Params:     s.Params,
			Result:     s.Value,
			DurationMS: s.Duration.Milliseconds(),
		}
		if s.Err != nil {
			sr.Error = s.Err.Error()
		}
		report.Steps = append(report.Steps, sr)
	}
	if runErr != nil {
		report.Error = runErr.Error()
	}
	return report
}

func applyRunFlags(cmd *cobra.Command, cfg *config.Config) error {
	if runPlanner != "" {
		if err := config.NewValidator().ValidatePlanner(runPlanner); err != nil {
			return err
		}
		cfg.Agent.Planner = runPlanner
	}
	if cmd.Flags().Changed("parallel") {
		cfg.Agent.Parallel = runParallel
	}
	if cmd.Flags().Changed("continue-on-error") {
		cfg.Agent.ContinueOnError = runContinue
	}
	if runNoSynthesize {
		cfg.Agent.Synthesize = false
	}
	return nil
}

func runRun(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer s.close(cmd.Context())

	if err := applyRunFlags(cmd, s.cfg); err != nil {
		return err
	}

	sys, err := startSystem(ctx, s, true)
	if err != nil {
		return err
	}
	defer stopSystem(sys)

	task := strings.Join(args, " ")
	result, err := sys.PlanAndExecute(ctx, task)
	if runJSON && result != nil {
		if werr := writeJSON(cmd.OutOrStdout(), newRunReport(result, err)); werr != nil {
			return werr
		}
		return err
	}
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), result.Output)
	return nil
}
