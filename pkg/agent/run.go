package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/harun/agentflow/internal/observability"
	"github.com/harun/agentflow/internal/tracing"
	"github.com/harun/agentflow/pkg/execctx"
	"github.com/harun/agentflow/pkg/flowerr"
	"github.com/harun/agentflow/pkg/llm"
	"github.com/harun/agentflow/pkg/planner"
	"github.com/harun/agentflow/pkg/workerpool"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
)

// InstructionKey holds the task text in every run's execution context.
const InstructionKey = "original_instruction"

const synthesisPrompt = "You are given a task and the results of the tool calls executed for it. " +
	"Answer the task using those results. Be concise and mention failed steps if any."

// PlanAndExecute plans task against the current catalog, runs the plan
// through the worker pool and synthesizes an answer. On failure after
// planning the partial result is returned alongside the error.
func (s *System) PlanAndExecute(ctx context.Context, task string) (result *RunResult, err error) {
	if s.planner == nil {
		return nil, flowerr.Config("agent.plan_and_execute", "no planner configured", nil)
	}

	if tracing.GetTraceID(ctx) == "" {
		ctx = tracing.NewRequestContext(ctx)
	}
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	ctx, span := tracing.StartSpan(ctx, tracerName, "agent.plan_and_execute",
		attribute.String("planner", s.planner.Name()),
	)
	logger := tracing.LoggerFromContext(ctx, log.Logger).With().Str("planner", s.planner.Name()).Logger()

	start := time.Now()
	result = &RunResult{Task: task, Planner: s.planner.Name(), Context: execctx.New()}
	defer func() {
		result.Duration = time.Since(start)
		observability.RecordAgentRun(result.Planner, result.Duration, err == nil)
		tracing.EndSpan(span, err)
	}()

	steps, err := s.planner.Plan(ctx, task, s.registry.Catalog())
	if err != nil {
		logger.Error().Err(err).Msg("Planning failed")
		return result, err
	}
	if len(steps) > s.cfg.MaxSteps {
		logger.Warn().Int("planned", len(steps)).Int("max_steps", s.cfg.MaxSteps).Msg("Plan truncated")
		steps = steps[:s.cfg.MaxSteps]
	}
	result.Plan = steps
	span.SetAttributes(attribute.Int("steps", len(steps)))
	logger.Info().Int("steps", len(steps)).Bool("parallel", s.cfg.Parallel).Msg("Plan ready")

	result.Context.Set(InstructionKey, task)
	if s.cfg.Parallel {
		result.Steps, err = s.executeParallel(ctx, steps, result.Context, logger)
	} else {
		result.Steps, err = s.executeSequential(ctx, steps, result.Context, logger)
	}
	if err != nil {
		return result, err
	}

	if s.cfg.Synthesize && s.client != nil {
		result.Output, err = s.synthesize(ctx, task, result.Context)
	} else {
		result.Output, err = renderContext(result.Context)
	}
	if err != nil {
		return result, err
	}

	logger.Info().
		Int("steps", len(result.Steps)).
		Int("failed", len(result.Failures())).
		Dur("duration", time.Since(start)).
		Msg("Task completed")
	return result, nil
}

func (s *System) executeSequential(ctx context.Context, steps []planner.Step, ec *execctx.Context, logger zerolog.Logger) ([]StepResult, error) {
	out := make([]StepResult, 0, len(steps))
	for i, step := range steps {
		res, err := s.pool.Submit(ctx, workerpool.Task{ToolName: step.ToolName, Params: step.Params, Context: ec})
		if err == nil {
			err = res.Err
		}
		sr := StepResult{
			Step:     i + 1,
			ToolName: step.ToolName,
			Params:   step.Params,
			Value:    res.Value,
			Err:      err,
			Duration: res.Duration,
		}
		out = append(out, sr)
		if err := s.record(ec, sr, logger); err != nil {
			return out, err
		}
	}
	return out, nil
}

func (s *System) executeParallel(ctx context.Context, steps []planner.Step, ec *execctx.Context, logger zerolog.Logger) ([]StepResult, error) {
	tasks := make([]workerpool.Task, len(steps))
	for i, step := range steps {
		tasks[i] = workerpool.Task{ToolName: step.ToolName, Params: step.Params, Context: ec}
	}

	out := make([]StepResult, 0, len(steps))
	var firstErr error
	for i, res := range s.pool.SubmitMany(ctx, tasks) {
		sr := StepResult{
			Step:     i + 1,
			ToolName: steps[i].ToolName,
			Params:   steps[i].Params,
			Value:    res.Value,
			Err:      res.Err,
			Duration: res.Duration,
		}
		out = append(out, sr)
		if err := s.record(ec, sr, logger); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return out, firstErr
}

// record stores a step outcome under its step key. Failures are stored as
// {"error": message} and only stop the run when ContinueOnError is off.
func (s *System) record(ec *execctx.Context, sr StepResult, logger zerolog.Logger) error {
	if sr.Err == nil {
		ec.Record(sr.Step, sr.ToolName, sr.Value)
		logger.Debug().Int("step", sr.Step).Str("tool", sr.ToolName).Dur("duration", sr.Duration).Msg("Step completed")
		return nil
	}

	ec.Record(sr.Step, sr.ToolName, map[string]any{"error": sr.Err.Error()})
	if s.cfg.ContinueOnError {
		logger.Warn().Err(sr.Err).Int("step", sr.Step).Str("tool", sr.ToolName).Msg("Step failed, continuing")
		return nil
	}
	logger.Error().Err(sr.Err).Int("step", sr.Step).Str("tool", sr.ToolName).Msg("Step failed")
	return fmt.Errorf("step %d (%s): %w", sr.Step, sr.ToolName, sr.Err)
}

func (s *System) synthesize(ctx context.Context, task string, ec *execctx.Context) (string, error) {
	payload, err := json.MarshalIndent(ec, "", "  ")
	if err != nil {
		return "", flowerr.Parse("agent.synthesize", "failed to encode step results", err)
	}

	resp, err := s.client.Chat(ctx, []llm.Message{
		llm.SystemMessage(synthesisPrompt),
		llm.UserMessage(fmt.Sprintf("Task: %s\n\nStep results:\n%s", task, payload)),
	}, nil)
	if err != nil {
		return "", fmt.Errorf("synthesis failed: %w", err)
	}
	return resp.Content, nil
}

func renderContext(ec *execctx.Context) (string, error) {
	payload, err := json.MarshalIndent(ec, "", "  ")
	if err != nil {
		return "", flowerr.Parse("agent.render", "failed to encode step results", err)
	}
	return string(payload), nil
}
