// Package saga runs named steps strictly in order, undoing completed steps
// when a later one fails.
package saga

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Step is a single unit of work. Compensate may be nil when the step has
// nothing to undo.
type Step struct {
	Name       string
	Execute    func(ctx context.Context) error
	Compensate func(ctx context.Context) error
}

// Observer is told about every executed step.
type Observer func(ctx context.Context, step string, err error, elapsed time.Duration)

// StepError reports which step stopped the saga.
type StepError struct {
	Saga            string
	Step            string
	Index           int
	Err             error
	CompensationErr error
}

func (e *StepError) Error() string {
	if e.CompensationErr != nil {
		return fmt.Sprintf("saga %s: step %q failed (%v), compensation also failed: %v", e.Saga, e.Step, e.Err, e.CompensationErr)
	}
	return fmt.Sprintf("saga %s: step %q failed: %v", e.Saga, e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

type Saga struct {
	name      string
	steps     []Step
	observers []Observer
}

func New(name string) *Saga {
	return &Saga{name: name}
}

func (s *Saga) AddStep(step Step) *Saga {
	s.steps = append(s.steps, step)
	return s
}

// Observe registers fn to be called after each step runs.
func (s *Saga) Observe(fn Observer) *Saga {
	s.observers = append(s.observers, fn)
	return s
}

// Execute runs the steps in order and stops at the first failure, which is
// returned as a *StepError after compensating completed steps in reverse.
func (s *Saga) Execute(ctx context.Context) error {
	for i, step := range s.steps {
		start := time.Now()
		err := step.Execute(ctx)
		for _, obs := range s.observers {
			obs(ctx, step.Name, err, time.Since(start))
		}
		if err != nil {
			return &StepError{
				Saga:            s.name,
				Step:            step.Name,
				Index:           i,
				Err:             err,
				CompensationErr: s.compensate(ctx, i),
			}
		}
	}
	return nil
}

func (s *Saga) compensate(ctx context.Context, failed int) error {
	var errs []error
	for i := failed - 1; i >= 0; i-- {
		step := s.steps[i]
		if step.Compensate == nil {
			continue
		}
		if err := step.Compensate(ctx); err != nil {
			errs = append(errs, fmt.Errorf("compensate step %q: %w", step.Name, err))
		}
	}
	return errors.Join(errs...)
}
