// Package form holds the state of the match form: the input being edited and
// the last submitted result.
package form

import (
	"context"
	"sync"

	"github.com/okian/rally/internal/domain/model"
)

// SubmitFunc derives an event from a snapshot of the input and hands it on
// for delivery. It must not wait for delivery to finish.
type SubmitFunc func(ctx context.Context, in model.MatchInput) (model.MatchEvent, error)

// Form is safe for concurrent use.
type Form struct {
	mu      sync.Mutex
	input   model.MatchInput
	last    model.MatchEvent
	hasLast bool
	count   int64
}

// New returns a form with default input and no last result.
func New() *Form {
	return &Form{input: model.DefaultInput()}
}

// Set replaces the input being edited.
func (f *Form) Set(in model.MatchInput) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.input = in
}

// Input returns the input being edited.
func (f *Form) Input() model.MatchInput {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.input
}

// Last returns the last submitted event, if any.
func (f *Form) Last() (model.MatchEvent, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last, f.hasLast
}

// Submissions returns how many events the form has produced.
func (f *Form) Submissions() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.count
}

// Submit snapshots the current input and passes it to submit. Once an event
// is derived the input is reset and the event becomes the last result,
// whatever later happens to its delivery. If no event could be derived the
// input is left as it was.
func (f *Form) Submit(ctx context.Context, submit SubmitFunc) (model.MatchEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submitLocked(ctx, f.input, submit)
}

// SubmitInput sets the input and submits it as one step.
func (f *Form) SubmitInput(ctx context.Context, in model.MatchInput, submit SubmitFunc) (model.MatchEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.input = in
	return f.submitLocked(ctx, in, submit)
}

func (f *Form) submitLocked(ctx context.Context, in model.MatchInput, submit SubmitFunc) (model.MatchEvent, error) {
	ev, err := submit(ctx, in)
	if err != nil {
		return model.MatchEvent{}, err
	}
	f.input.Reset()
	f.last = ev
	f.hasLast = true
	f.count++
	return ev, nil
}
