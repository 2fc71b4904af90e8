package vkframe

import "go.uber.org/multierr"

// releaser is a LIFO stack of release actions registered as objects are
// created. Unwind runs every action in reverse creation order. Commit hands
// ownership to the caller and empties the stack.
type releaser struct {
	actions []func() error
}

// Defer registers a release action that cannot fail.
func (r *releaser) Defer(fn func()) {
	r.actions = append(r.actions, func() error {
		fn()
		return nil
	})
}

// DeferErr registers a release action whose error is collected by Unwind.
func (r *releaser) DeferErr(fn func() error) {
	r.actions = append(r.actions, fn)
}

// Unwind releases everything registered so far, newest first.
func (r *releaser) Unwind() error {
	var err error
	for i := len(r.actions) - 1; i >= 0; i-- {
		err = multierr.Append(err, r.actions[i]())
	}
	r.actions = nil
	return err
}

// Commit keeps every registered resource alive.
func (r *releaser) Commit() {
	r.actions = nil
}

// Len is the number of pending release actions.
func (r *releaser) Len() int {
	return len(r.actions)
}
