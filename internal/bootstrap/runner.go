// Package bootstrap runs the environment setup sequence.
//
// A run is a fixed list of steps executed strictly in order:
//
//	create → activate → install → message
//
// There is no concurrency and no retry. What happens after a failure is
// decided by the run's model.FailurePolicy:
//
//   - PolicyAbort stops at the first failure; later steps are skipped and
//     the completion message is not printed.
//   - PolicyContinue attempts every step, the way a shell script without
//     `set -e` would, and reports the exit code of the last tool step.
//
// In both cases the message step runs only after every earlier step has
// been attempted.
package bootstrap

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/atlas-ql/envsetup/internal/conda"
	"github.com/atlas-ql/envsetup/internal/model"
)

// State is shared between the steps of one run.
type State struct {
	// EnvName is the target environment name. Empty until known.
	EnvName string

	// EnvFile is the absolute path of the spec file.
	EnvFile string

	// Activation is set by the activate step on success and consumed by
	// the install step.
	Activation *conda.Activation

	// Message is the completion text, set by the message step.
	Message string
}

// Step is one stage of the sequence.
type Step interface {
	// Name identifies the step in reports.
	Name() model.StepName

	// Command is the display form of what the step runs. It may depend
	// on State (e.g. the install command changes once activation succeeds).
	Command(st *State) string

	// Run executes the step. Errors should carry a model.CLIError so the
	// step's exit code can be reported.
	Run(ctx context.Context, st *State) error
}

// planner is implemented by steps whose real command line is only known
// after earlier steps have run.
type planner interface {
	// PlanCommand describes what the step will run, for steps that have
	// not run yet.
	PlanCommand(st *State) string
}

func plannedCommand(step Step, st *State) string {
	if p, ok := step.(planner); ok {
		return p.PlanCommand(st)
	}
	return step.Command(st)
}

// Runner executes a sequence of steps.
type Runner struct {
	// Steps run in slice order.
	Steps []Step

	// Policy decides whether to continue after a failed step.
	Policy model.FailurePolicy

	// State is passed to every step. A zero State is used when nil.
	State *State

	// Logger receives progress lines.
	Logger zerolog.Logger

	// Now is time.Now in production and a fixed clock in tests.
	Now func() time.Time
}

// Plan returns a report listing every step as planned without running
// anything. It backs --dry-run.
func (r *Runner) Plan() *model.Report {
	r.defaults()

	report := r.newReport()
	report.DryRun = true
	for _, step := range r.Steps {
		report.Steps = append(report.Steps, model.StepResult{
			Name:    step.Name(),
			Status:  model.StatusPlanned,
			Command: plannedCommand(step, r.State),
		})
	}
	return report
}

// Run executes the steps and returns the report. The returned error is
// non-nil exactly when the report's exit code is non-zero; it carries
// that code as a model.CLIError.
func (r *Runner) Run(ctx context.Context) (*model.Report, error) {
	r.defaults()

	report := r.newReport()
	var (
		stopped     bool
		stopErr     error
		lastToolErr error
	)

	for _, step := range r.Steps {
		name := step.Name()

		if stopped {
			report.Steps = append(report.Steps, model.StepResult{
				Name:    name,
				Status:  model.StatusSkipped,
				Command: plannedCommand(step, r.State),
			})
			r.Logger.Debug().Str("step", name.String()).Msg("skipped")
			continue
		}

		result, err := r.runStep(ctx, step)
		report.Steps = append(report.Steps, result)

		if name == model.StepMessage && err == nil {
			report.Message = r.State.Message
			report.Completed = true
		}
		if name != model.StepMessage {
			lastToolErr = err
		}

		switch {
		case err == nil:
		case ctx.Err() != nil || IsInterrupted(err):
			stopped = true
			stopErr = err
			if model.ExitCodeOf(err) != model.ExitInterrupted {
				stopErr = model.WrapCLIError(model.ExitInterrupted, "interrupted", err)
			}
		case r.Policy == model.PolicyAbort:
			stopped = true
			stopErr = err
		default:
			r.Logger.Warn().Str("step", name.String()).Int("exit", int(model.ExitCodeOf(err))).Msgf("%v (continuing)", err)
		}
	}

	report.EnvName = r.State.EnvName
	if r.State.Activation != nil {
		report.Prefix = r.State.Activation.Prefix
	}

	// Under PolicyContinue the run ends like a shell script: with the
	// status of the last command that ran.
	finalErr := stopErr
	if finalErr == nil && r.Policy == model.PolicyContinue {
		finalErr = lastToolErr
	}
	report.ExitCode = int(model.ExitCodeOf(finalErr))
	return report, finalErr
}

// runStep executes one step and converts the outcome into a StepResult.
func (r *Runner) runStep(ctx context.Context, step Step) (model.StepResult, error) {
	name := step.Name()
	result := model.StepResult{Name: name, Command: step.Command(r.State)}

	if result.Command != "" {
		r.Logger.Info().Str("step", name.String()).Msg(result.Command)
	}

	start := r.Now()
	err := ctx.Err()
	if err == nil {
		err = step.Run(ctx, r.State)
	} else {
		err = model.WrapCLIError(model.ExitInterrupted, "interrupted", err)
	}
	result.Duration = r.Now().Sub(start)

	// Steps can refine their command line while running (e.g. install
	// switches to the environment's interpreter after activation).
	result.Command = step.Command(r.State)

	if err != nil {
		result.Status = model.StatusFailed
		result.ExitCode = int(model.ExitCodeOf(err))
		result.Error = err.Error()
		r.Logger.Debug().Str("step", name.String()).Int("exit", result.ExitCode).Msg("failed")
		return result, err
	}

	result.Status = model.StatusSucceeded
	if act := r.State.Activation; name == model.StepActivate && act != nil {
		r.Logger.Debug().Str("prefix", act.Prefix).Str("conda", act.CondaVersion).Msg("activated")
	}
	r.Logger.Debug().Str("step", name.String()).Dur("took", result.Duration).Msg("done")
	return result, nil
}

func (r *Runner) defaults() {
	if r.Now == nil {
		r.Now = time.Now
	}
	if r.State == nil {
		r.State = &State{}
	}
	if !r.Policy.IsValid() {
		r.Policy = model.PolicyAbort
	}
}

func (r *Runner) newReport() *model.Report {
	return &model.Report{
		EnvName: r.State.EnvName,
		EnvFile: r.State.EnvFile,
		Policy:  r.Policy,
		Steps:   make([]model.StepResult, 0, len(r.Steps)),
	}
}

// IsInterrupted reports whether err came from a cancelled run.
func IsInterrupted(err error) bool {
	return errors.Is(err, context.Canceled) || model.ExitCodeOf(err) == model.ExitInterrupted
}
