package orchestration

import (
	"context"
	"fmt"
)

type workerRun func(context.Context) error

// panicSafeNamedWorker turns a panic in run into an error so that the other
// stage of the group is cancelled instead of the process crashing.
func panicSafeNamedWorker(name string, run func(context.Context) error) workerRun {
	return func(ctx context.Context) (err error) {
		defer func() {
			if recovered := recover(); recovered != nil {
				err = fmt.Errorf("%s stage panicked: %v", name, recovered)
			}
		}()

		if err = run(ctx); err != nil {
			return fmt.Errorf("%s stage failed: %w", name, err)
		}

		return nil
	}
}
