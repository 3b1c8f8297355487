package provisioning

import (
	"context"
	"errors"
	"fmt"
)

// Step is one forward action of a saga and the action that undoes it.
// Compensate may be nil for a step with nothing to undo.
type Step struct {
	Name       string
	Action     func(ctx context.Context) error
	Compensate func(ctx context.Context) error
}

// Saga runs steps in order. When a step fails, every step that already
// completed is compensated in reverse order; the failed step itself is not,
// since its action did not take effect.
type Saga struct {
	steps []Step
}

func NewSaga(steps ...Step) *Saga {
	return &Saga{steps: steps}
}

// StepError reports the step whose action failed and the outcome of the
// unwind that followed.
type StepError struct {
	Step string
	Err  error

	// Compensated lists the steps successfully undone, in unwind order.
	Compensated []string

	// CompensationErr joins every compensation failure. Nil means the saga
	// left no partial state behind.
	CompensationErr error
}

func (e *StepError) Error() string {
	if e.CompensationErr != nil {
		return fmt.Sprintf("saga step %q failed: %v (compensation failed: %v)", e.Step, e.Err, e.CompensationErr)
	}
	return fmt.Sprintf("saga step %q failed: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// Run executes the saga. It returns nil or a *StepError.
func (s *Saga) Run(ctx context.Context) error {
	for i, step := range s.steps {
		if err := step.Action(ctx); err != nil {
			failure := &StepError{Step: step.Name, Err: err}
			failure.Compensated, failure.CompensationErr = s.unwind(ctx, i)
			return failure
		}
	}
	return nil
}

// unwind compensates steps [0, failed) in reverse.
func (s *Saga) unwind(ctx context.Context, failed int) ([]string, error) {
	var (
		done []string
		errs []error
	)
	for i := failed - 1; i >= 0; i-- {
		step := s.steps[i]
		if step.Compensate == nil {
			continue
		}
		if err := step.Compensate(ctx); err != nil {
			errs = append(errs, fmt.Errorf("compensate %q: %w", step.Name, err))
			continue
		}
		done = append(done, step.Name)
	}
	return done, errors.Join(errs...)
}
