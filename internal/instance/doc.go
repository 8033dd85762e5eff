// Package instance keeps a single server per state directory.
//
//	guard, err := instance.Acquire(settings.StateDir)
//	if errors.Is(err, instance.ErrAlreadyRunning) { ... }
//	defer guard.Release()
//	guard.Wait(ctx, time.Second) // returns once `music-parser stop` ran
package instance
