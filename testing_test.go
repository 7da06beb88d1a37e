package dirwatch

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"testing"
	"time"
)

// NOTE: some useful environment variables:
//
//   - DIRWATCH_DEBUG gives some extra information about decoded records
//   - DIRWATCH_TIMEOUT allows for changing default wait time for watcher's
//     records

// timeout gives the time a test waits for records before failing.
func timeout() time.Duration {
	if s := os.Getenv("DIRWATCH_TIMEOUT"); s != "" {
		if t, err := time.ParseDuration(s); err == nil {
			return t
		}
	}
	return 2 * time.Second
}

func isDir(path string) bool {
	r := path[len(path)-1]
	return r == '\\' || r == '/'
}

func nonil(err ...error) error {
	for _, err := range err {
		if err != nil {
			return err
		}
	}
	return nil
}

// tmpcreate creates path under root, a directory when path ends with a
// separator.
func tmpcreate(root, path string) (bool, error) {
	isdir := isDir(path)
	path = filepath.Join(root, filepath.FromSlash(path))
	if isdir {
		if err := os.MkdirAll(path, 0755); err != nil {
			return false, err
		}
	} else {
		f, err := os.Create(path)
		if err != nil {
			return false, err
		}
		if err := nonil(f.Sync(), f.Close()); err != nil {
			return false, err
		}
	}
	return isdir, nil
}

func callern(n int) string {
	_, file, line, ok := runtime.Caller(n)
	if !ok {
		return "<unknown>"
	}
	return filepath.Base(file) + ":" + strconv.Itoa(line)
}

func caller() string {
	return callern(3)
}

// WCase is a filesystem action along with the records it is expected to
// produce, in order.
type WCase struct {
	Action  func()
	Records []Record
}

func (cas WCase) String() string {
	s := make([]string, 0, len(cas.Records))
	for _, r := range cas.Records {
		s = append(s, r.String())
	}
	return strings.Join(s, ", ")
}

// W runs a real Watcher over a temporary directory tree.
type W struct {
	Watcher *Watcher
	C       *Collector
	Timeout time.Duration

	t    *testing.T
	root string
}

// NewWatcherTest creates the given files and directories under a temporary
// root and starts watching it.
func NewWatcherTest(t *testing.T, o *Options, tree ...string) *W {
	w := &W{t: t, root: t.TempDir(), C: NewCollector()}
	for _, p := range tree {
		if _, err := tmpcreate(w.root, p); err != nil {
			t.Fatalf("tmpcreate(%q, %q)=%v", w.root, p, err)
		}
	}
	var err error
	if w.Watcher, err = NewWatcher(w.root, w.C, o); err != nil {
		t.Fatalf("NewWatcher(%q)=%v", w.root, err)
	}
	if err := w.Watcher.Start(); err != nil {
		w.Watcher.Close()
		t.Fatalf("Start()=%v", err)
	}
	t.Cleanup(func() { w.Close() })
	return w
}

func (w *W) Fatal(v interface{}) {
	w.t.Fatalf("%s: %v", caller(), v)
}

func (w *W) Fatalf(format string, v ...interface{}) {
	w.t.Fatalf("%s: %s", caller(), fmt.Sprintf(format, v...))
}

func (w *W) timeout() time.Duration {
	if w.Timeout != 0 {
		return w.Timeout
	}
	return timeout()
}

// Close stops the watcher.
func (w *W) Close() error {
	if err := w.Watcher.Close(); err != nil {
		w.Fatalf("Watcher.Close()=%v", err)
	}
	return nil
}

// Expect runs every case and checks the records it produced.
func (w *W) Expect(cases []WCase) {
	w.t.Helper()
	for i, cas := range cases {
		cas.Action()
		for j, want := range cas.Records {
			select {
			case got := <-w.C.c:
				if err := EqualRecord(want, got); err != nil {
					w.Fatalf("%v (i=%d, j=%d, case=%v)", err, i, j, cas)
				}
			case <-w.Watcher.Done():
				w.Fatalf("watcher stopped: %v (i=%d, j=%d, case=%v)", w.Watcher.Err(), i, j, cas)
			case <-time.After(w.timeout()):
				w.Fatalf("timed out after %v waiting for %v (i=%d, j=%d)", w.timeout(), want, i, j)
			}
		}
	}
}

// ExpectStop waits for the watcher to stop and gives the error it stopped
// with.
func (w *W) ExpectStop() error {
	select {
	case <-w.Watcher.Done():
		return w.Watcher.Err()
	case <-time.After(w.timeout()):
		w.Fatalf("timed out after %v waiting for the watcher to stop", w.timeout())
	}
	return nil
}

// bare drops the extended metadata and turns names into slash-separated
// ones, for comparing whole batches.
func bare(recs []Record) []Record {
	out := make([]Record, len(recs))
	for i, r := range recs {
		out[i] = Record{Action: r.Action, Name: filepath.ToSlash(r.Name)}
	}
	return out
}

// EqualRecord compares action and name, the latter with slash separators.
func EqualRecord(want, got Record) error {
	if want.Action != got.Action {
		return fmt.Errorf("want Action=%v; got %v (name=%s)", want.Action, got.Action, want.Name)
	}
	if filepath.ToSlash(got.Name) != want.Name {
		return fmt.Errorf("want Name=%s; got %s (action=%v)", want.Name, filepath.ToSlash(got.Name), want.Action)
	}
	return nil
}

func create(w *W, path string) WCase {
	return WCase{
		Action: func() {
			if _, err := tmpcreate(w.root, path); err != nil {
				w.Fatalf("tmpcreate(%q, %q)=%v", w.root, path, err)
			}
		},
		Records: []Record{{Action: Added, Name: strings.TrimRight(path, "/")}},
	}
}

func remove(w *W, path string) WCase {
	return WCase{
		Action: func() {
			if err := os.RemoveAll(filepath.Join(w.root, filepath.FromSlash(path))); err != nil {
				w.Fatal(err)
			}
		},
		Records: []Record{{Action: Removed, Name: path}},
	}
}

func rename(w *W, oldpath, newpath string) WCase {
	return WCase{
		Action: func() {
			err := os.Rename(filepath.Join(w.root, filepath.FromSlash(oldpath)),
				filepath.Join(w.root, filepath.FromSlash(newpath)))
			if err != nil {
				w.Fatal(err)
			}
		},
		Records: []Record{
			{Action: RenamedFrom, Name: oldpath},
			{Action: RenamedTo, Name: newpath},
		},
	}
}
