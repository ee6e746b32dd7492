package dynamo

import "golang.org/x/sync/errgroup"

// Fork runs fns and joins them before returning the first error. When
// concurrent is false, or there is a single function, they run serially in
// order on the calling goroutine. Callers are responsible for making the
// functions touch disjoint memory.
func Fork(concurrent bool, fns ...func() error) error {
	if !concurrent || len(fns) < 2 {
		for _, fn := range fns {
			if err := fn(); err != nil {
				return err
			}
		}
		return nil
	}

	var g errgroup.Group
	for _, fn := range fns {
		g.Go(fn)
	}
	return g.Wait()
}
