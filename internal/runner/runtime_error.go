package runner

import "fmt"

// RuntimeError marks a cycle that completed in degraded form: the fleet still
// ticked but a side step (sampling, persistence) failed. The loop keeps going.
type RuntimeError struct {
	Op   string
	Tick uint64
	Err  error
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("tick %d: %s: %v", e.Tick, e.Op, e.Err)
}

func (e *RuntimeError) Unwrap() error {
	return e.Err
}

func wrapRuntime(op string, tick uint64, err error) error {
	if err == nil {
		return nil
	}
	return &RuntimeError{Op: op, Tick: tick, Err: err}
}
