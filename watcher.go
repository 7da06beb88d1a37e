package dirwatch

import (
	"errors"
	"sync"
	"sync/atomic"
)

// State of a Watcher. A watcher moves from Watching to Stopped exactly once.
type State int32

const (
	Idle State = iota
	Watching
	Stopped
)

var sstr = [...]string{Idle: "idle", Watching: "watching", Stopped: "stopped"}

// String implements fmt.Stringer interface.
func (s State) String() string {
	if int(s) < len(sstr) {
		return sstr[s]
	}
	return "unknown"
}

// Options configures a Watcher. The zero value is ready to use.
type Options struct {
	// BufferSize is the capacity of the notification buffer, DefaultBufferSize
	// when zero.
	BufferSize int

	// Portable selects the fsnotify facility instead of the native one.
	Portable bool
}

// Watcher watches a single directory tree. It owns the directory handle,
// the completion association and the notification buffer, and keeps exactly
// one read outstanding until it stops.
type Watcher struct {
	path string
	sys  system
	buf  *Buffer
	h    Handler

	state atomic.Int32
	done  chan struct{}
	once  sync.Once
	err   error // set before done is closed

	mu          sync.Mutex
	dispatching bool // a completed batch is being handled
	closeLater  bool // Close was called while dispatching

	closing  sync.Once
	released chan struct{}
	cerr     error // set before released is closed
}

// NewWatcher opens path for watching. Records are passed to h once Start
// is called.
func NewWatcher(path string, h Handler, o *Options) (*Watcher, error) {
	if o == nil {
		o = &Options{}
	}
	return newWatcher(newSystem(o.Portable), path, h, o.BufferSize)
}

func newWatcher(sys system, path string, h Handler, size int) (*Watcher, error) {
	if h == nil {
		return nil, errors.New("dirwatch: nil handler")
	}
	if size == 0 {
		size = DefaultBufferSize
	}
	if err := sys.Open(path); err != nil {
		var oe *OpenError
		if !errors.As(err, &oe) {
			err = &OpenError{Path: path, Err: err}
		}
		return nil, err
	}
	w := &Watcher{
		path: path,
		sys:  sys,
		buf:  NewBuffer(size),
		h:        h,
		done:     make(chan struct{}),
		released: make(chan struct{}),
	}
	if err := sys.Associate(w.complete); err != nil {
		w.buf.release()
		sys.Close()
		return nil, &OpenError{Path: path, Err: err}
	}
	dbgprintf("watcher: opened %q (buffer=%d)", path, w.buf.Len())
	return w, nil
}

// Start arms the first read. A failed submission is returned and leaves the
// watcher stopped.
func (w *Watcher) Start() error {
	if !w.state.CompareAndSwap(int32(Idle), int32(Watching)) {
		if w.State() == Stopped {
			return ErrClosed
		}
		return errors.New("dirwatch: watcher already started")
	}
	if err := w.submit(); err != nil {
		w.stop(err)
		return err
	}
	return nil
}

// State gives the current state of the watcher.
func (w *Watcher) State() State { return State(w.state.Load()) }

// Done is closed when the watcher stops, either because a read failed or
// because Close was called.
func (w *Watcher) Done() <-chan struct{} { return w.done }

// Err gives the error which stopped the watcher. It is nil while watching
// and after a plain Close.
func (w *Watcher) Err() error {
	select {
	case <-w.done:
		return w.err
	default:
		return nil
	}
}

// Close stops the watcher and releases its resources in reverse acquisition
// order: the completion association along with the outstanding read, the
// buffer, the directory handle.
//
// Close may be called from a Handler. While a batch is being handled Close
// only stops the watcher and returns nil, the resources are released once
// the handling is over.
func (w *Watcher) Close() error {
	w.stop(nil)
	w.mu.Lock()
	if w.dispatching {
		w.closeLater = true
		w.mu.Unlock()
		dbgprintf("watcher: %q close deferred until the batch is handled", w.path)
		return nil
	}
	w.mu.Unlock()
	w.closing.Do(w.release)
	return w.cerr
}

// closeWait closes the watcher and waits until its resources are released,
// including a release deferred by Close.
func (w *Watcher) closeWait() error {
	w.Close()
	<-w.released
	return w.cerr
}

func (w *Watcher) release() {
	defer close(w.released)
	err := w.sys.Dissociate()
	if w.buf.InFlight() {
		// The facility did not deliver the completion of the outstanding
		// read, so it may still write into the buffer.
		dbgprintf("watcher: %q dissociated with a read in flight", w.path)
	} else {
		w.buf.release()
	}
	if cerr := w.sys.Close(); err == nil {
		err = cerr
	}
	w.cerr = err
	dbgprintf("watcher: closed %q: %v", w.path, err)
}

// submit lends the buffer to a single read.
func (w *Watcher) submit() error {
	if w.State() != Watching {
		return &SubmissionError{Err: ErrClosed}
	}
	if err := w.buf.lend(); err != nil {
		dbgprintf("watcher: submit: %v %v", err, dbgcallstack(8))
		return &SubmissionError{Err: err}
	}
	if err := w.sys.Submit(w.buf.Bytes()); err != nil {
		w.buf.reclaim()
		return &SubmissionError{Err: err}
	}
	return nil
}

// complete handles a finished read. It runs on the facility's dispatch
// goroutine, at most one invocation at a time since a read is submitted only
// after the previous batch was drained.
func (w *Watcher) complete(n int, err error) {
	w.buf.reclaim()
	if !w.enter() {
		dbgprint("watcher: dropping completion of a stopped watcher:", n, err)
		return
	}
	defer w.leave()
	if err != nil || n <= 0 {
		if err == nil {
			err = ErrOverflow
		}
		w.stop(&CompletionError{N: n, Err: err})
		return
	}
	if n > w.buf.Len() {
		w.stop(&CompletionError{N: n, Err: corrupt(0, "completion larger than the buffer")})
		return
	}
	r := NewRecordReader(w.sys.Layout(), w.buf.Bytes()[:n])
	for r.Next() {
		w.h.Handle(r.Record())
		if w.State() != Watching {
			return
		}
	}
	if err := r.Err(); err != nil {
		w.stop(&CompletionError{N: n, Err: err})
		return
	}
	if err := w.submit(); err != nil {
		w.stop(err)
	}
}

// enter marks the start of handling a batch. It fails once the watcher
// stopped.
func (w *Watcher) enter() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.State() != Watching {
		return false
	}
	w.dispatching = true
	return true
}

// leave marks the end of handling a batch and runs a release deferred by
// Close. The release waits for the facility's dispatch goroutine, which may
// be the current one, so it gets a goroutine of its own.
func (w *Watcher) leave() {
	w.mu.Lock()
	w.dispatching = false
	later := w.closeLater
	w.mu.Unlock()
	if later {
		go w.closing.Do(w.release)
	}
}

// stop moves the watcher to the Stopped state and fires the termination
// signal. Only the first call has any effect.
func (w *Watcher) stop(err error) {
	w.once.Do(func() {
		w.state.Store(int32(Stopped))
		w.err = err
		if err != nil {
			dbgprintf("watcher: %q stopped: %v", w.path, err)
		}
		close(w.done)
	})
}
