package startup

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/codex-k8s/grades-mcp-server/internal/constants"
	"github.com/codex-k8s/grades-mcp-server/internal/dsl"
	"github.com/codex-k8s/grades-mcp-server/internal/seed"
	"github.com/codex-k8s/grades-mcp-server/internal/store"
	"github.com/codex-k8s/grades-mcp-server/internal/timeutil"
)

// Migrator creates or updates the schema.
type Migrator interface {
	Migrate(ctx context.Context) error
}

// Run executes configured startup steps sequentially.
func Run(ctx context.Context, steps []dsl.StepConfig, target store.Seeder, logger *slog.Logger) error {
	for idx, step := range steps {
		if !step.StepEnabled() {
			continue
		}
		stepCtx := ctx
		cancel := context.CancelFunc(func() {})
		if timeout := timeutil.ParseDurationOrDefault(step.Timeout, 0); timeout > 0 {
			stepCtx, cancel = context.WithTimeout(ctx, timeout)
		}

		if logger != nil {
			logger.Info("running startup step", "index", idx, "step", step.Step)
		}
		err := runStep(stepCtx, step, target, logger)
		cancel()
		if err != nil {
			return fmt.Errorf("startup step %d (%s) failed: %w", idx, step.Step, err)
		}
	}
	return nil
}

func runStep(ctx context.Context, step dsl.StepConfig, target store.Seeder, logger *slog.Logger) error {
	switch step.Step {
	case constants.StepMigrate:
		m, ok := target.(Migrator)
		if !ok {
			if logger != nil {
				logger.Info("store has no schema, migrate skipped")
			}
			return nil
		}
		return m.Migrate(ctx)
	case constants.StepSeed:
		rep, err := seed.Run(ctx, target, seed.Options{RandSeed: step.RandSeed})
		if err != nil {
			return err
		}
		if logger != nil {
			logger.Info("seed data loaded", "teachers", len(rep.TeacherIDs), "students", len(rep.StudentIDs), "grades", rep.Grades)
		}
		return nil
	default:
		return fmt.Errorf("unknown step %q", step.Step)
	}
}
