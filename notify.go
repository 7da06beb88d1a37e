package dirwatch

import "context"

// Watch watches the directory tree rooted at path and passes every change to
// h until ctx is done or the watch fails.
//
// Startup errors are returned before anything is watched: *OpenError when
// the directory cannot be opened, *SubmissionError when the first read cannot
// be armed. Once watching, a failed or empty completion stops the watch and
// Watch returns the *CompletionError or *SubmissionError which caused it.
// Watch returns nil when it was stopped through ctx.
//
// Nothing is retried. A dropped watch is reported, and restarting it is up
// to the caller.
func Watch(ctx context.Context, path string, h Handler, o *Options) error {
	w, err := NewWatcher(path, h, o)
	if err != nil {
		return err
	}
	return run(ctx, w)
}

func run(ctx context.Context, w *Watcher) error {
	if err := w.Start(); err != nil {
		w.closeWait()
		return err
	}
	select {
	case <-ctx.Done():
		dbgprintf("watch: %q: %v", w.path, ctx.Err())
	case <-w.Done():
	}
	if err := w.closeWait(); err != nil {
		dbgprintf("watch: closing %q: %v", w.path, err)
	}
	return w.Err()
}
