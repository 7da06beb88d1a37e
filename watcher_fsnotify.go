package dirwatch

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
)

var errNotDir = errors.New("not a directory")

// fswatch is the portable facility. fsnotify delivers events over channels
// instead of filling a caller-provided buffer, so each submitted read is
// served by encoding the observed changes into the buffer with the extended
// layout, as ReadDirectoryChangesExW would. fsnotify is not recursive, every
// directory of the tree gets its own watch.
type fswatch struct {
	root string
	w    *fsnotify.Watcher

	pending []Record // observed, not yet delivered
	gone    atomic.Bool

	mu      sync.Mutex
	fn      completion
	reqs    chan []byte
	quit    chan struct{}
	exited  chan struct{}
	closing atomic.Bool

	dissociate sync.Once
	close      sync.Once
	cerr       error
}

func newFsnotify() *fswatch {
	return &fswatch{
		reqs: make(chan []byte, 1),
		quit: make(chan struct{}),
	}
}

// Open implements system interface.
func (f *fswatch) Open(path string) error {
	fi, err := os.Stat(path)
	if err != nil {
		return &OpenError{Path: path, Err: err}
	}
	if !fi.IsDir() {
		return &OpenError{Path: path, Err: errNotDir}
	}
	if f.w, err = fsnotify.NewWatcher(); err != nil {
		return err
	}
	f.root = filepath.Clean(path)
	if err := f.addtree(f.root); err != nil {
		f.w.Close()
		f.w = nil
		return &OpenError{Path: path, Err: err}
	}
	return nil
}

func (f *fswatch) addtree(dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if err := f.w.Add(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return fs.SkipDir
			}
			return err
		}
		dbgprintf("fsnotify: watching %q", p)
		return nil
	})
}

// Associate implements system interface.
func (f *fswatch) Associate(fn completion) error {
	f.fn = fn
	f.exited = make(chan struct{})
	go f.loop()
	return nil
}

// Submit implements system interface.
func (f *fswatch) Submit(p []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch {
	case f.closing.Load():
		return ErrClosed
	case f.gone.Load():
		return ErrDirectoryRemoved
	}
	select {
	case f.reqs <- p:
		return nil
	default:
		return ErrBufferInFlight
	}
}

// Layout implements system interface.
func (*fswatch) Layout() Layout { return LayoutExtended }

func (f *fswatch) loop() {
	defer close(f.exited)
	for {
		select {
		case p := <-f.reqs:
			n, err := f.fill(p)
			f.fn(n, err)
		case <-f.quit:
			select {
			case <-f.reqs:
				f.fn(0, ErrClosed)
			default:
			}
			return
		}
	}
}

// fill blocks until at least one change is observed, then encodes as many
// of the observed changes as fit into p. A dropped event queue gives a
// zero-byte completion, the same way ReadDirectoryChangesW reports an
// overflow.
func (f *fswatch) fill(p []byte) (int, error) {
	for len(f.pending) == 0 {
		if f.gone.Load() {
			// Nothing left to deliver from a removed tree.
			return 0, ErrDirectoryRemoved
		}
		select {
		case ev, ok := <-f.w.Events:
			if !ok {
				return 0, ErrClosed
			}
			f.observe(ev)
		case err, ok := <-f.w.Errors:
			if !ok {
				return 0, ErrClosed
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				return 0, nil
			}
			return 0, err
		case <-f.quit:
			return 0, ErrClosed
		}
	}
	for more := true; more; {
		select {
		case ev, ok := <-f.w.Events:
			if more = ok; ok {
				f.observe(ev)
			}
		default:
			more = false
		}
	}
	n, m := PutExtended(p, f.pending)
	if m == 0 {
		return 0, corrupt(0, "record for "+f.pending[0].Name+" does not fit the buffer")
	}
	f.pending = f.pending[m:]
	return n, nil
}

func (f *fswatch) observe(ev fsnotify.Event) {
	name := filepath.Clean(ev.Name)
	if name == f.root {
		if (ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename)) && f.gone.CompareAndSwap(false, true) {
			// A record without an action completes the outstanding read,
			// the next Submit reports the removal.
			f.pending = append(f.pending, Record{})
		}
		return
	}
	rel, err := filepath.Rel(f.root, name)
	if err != nil {
		dbgprintf("fsnotify: event outside of %q: %v", f.root, ev)
		return
	}
	rec := Record{Name: rel}
	switch {
	case ev.Has(fsnotify.Create):
		rec.Action = Added
		if fi, err := os.Lstat(name); err == nil {
			rec.Ext = stat(fi)
			if fi.IsDir() {
				if err := f.addtree(name); err != nil {
					dbgprintf("fsnotify: watching new directory %q: %v", rel, err)
				}
			}
		}
	case ev.Has(fsnotify.Remove):
		rec.Action = Removed
	case ev.Has(fsnotify.Rename):
		rec.Action = RenamedFrom
	default:
		// Write and Chmod are not name changes.
		return
	}
	f.pending = append(f.pending, rec)
}

func stat(fi fs.FileInfo) *Extended {
	ext := &Extended{
		ModTime: fi.ModTime(),
		Size:    fi.Size(),
	}
	if fi.IsDir() {
		ext.Attributes |= fileAttributeDirectory
	}
	return ext
}

// Dissociate implements system interface.
func (f *fswatch) Dissociate() error {
	f.dissociate.Do(func() {
		f.mu.Lock()
		f.closing.Store(true)
		f.mu.Unlock()
		if f.exited != nil {
			close(f.quit)
			<-f.exited
		}
	})
	return nil
}

// Close implements system interface.
func (f *fswatch) Close() error {
	f.close.Do(func() {
		f.Dissociate()
		if f.w != nil {
			f.cerr = f.w.Close()
		}
	})
	return f.cerr
}
