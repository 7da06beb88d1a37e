//go:build linux

package dirwatch

import (
	"bytes"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// inotifyMask selects the name changes ReadDirectoryChangesW reports for
// FILE_NOTIFY_CHANGE_FILE_NAME|FILE_NOTIFY_CHANGE_DIR_NAME, plus the events
// telling the watched root went away.
const inotifyMask = unix.IN_CREATE | unix.IN_DELETE | unix.IN_MOVED_FROM | unix.IN_MOVED_TO |
	unix.IN_DELETE_SELF | unix.IN_MOVE_SELF | unix.IN_ONLYDIR

// inotify watches a directory tree with one inotify watch per directory.
// Reads are served by a single goroutine which waits for readiness with
// epoll, an eventfd registered next to the inotify descriptor wakes it up on
// Dissociate.
type inotify struct {
	root string
	fd   int

	mu     sync.Mutex
	dirs   map[int32]string // watch descriptor -> directory relative to root
	rootwd int32
	dead   []int32 // descriptors removed by the previous batch
	gone   bool

	epfd    int
	evfd    int
	fn      completion
	reqs    chan []byte
	quit    chan struct{}
	exited  chan struct{}
	closing atomic.Bool

	dissociate sync.Once
	close      sync.Once
	derr, cerr error
}

func newInotify() *inotify {
	return &inotify{
		fd:   -1,
		epfd: -1,
		evfd: -1,
		dirs: make(map[int32]string),
		reqs: make(chan []byte, 1),
		quit: make(chan struct{}),
	}
}

// Open implements system interface.
func (i *inotify) Open(path string) error {
	fd, err := unix.InotifyInit1(unix.IN_CLOEXEC | unix.IN_NONBLOCK)
	if err != nil {
		return os.NewSyscallError("inotify_init1", err)
	}
	i.fd, i.root = fd, path
	wd, err := unix.InotifyAddWatch(fd, path, inotifyMask)
	if err != nil {
		unix.Close(fd)
		i.fd = -1
		return &OpenError{Path: path, Err: os.NewSyscallError("inotify_add_watch", err)}
	}
	i.rootwd = int32(wd)
	i.dirs[i.rootwd] = ""
	i.mu.Lock()
	err = i.addtree("")
	i.mu.Unlock()
	if err != nil {
		unix.Close(fd)
		i.fd = -1
		return &OpenError{Path: path, Err: err}
	}
	return nil
}

// addtree watches every directory below rel. Directories which disappear
// while walking are skipped.
func (i *inotify) addtree(rel string) error {
	base := filepath.Join(i.root, rel)
	return filepath.WalkDir(base, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if !d.IsDir() || (p == base && rel == "") {
			return nil
		}
		wd, err := unix.InotifyAddWatch(i.fd, p, inotifyMask)
		switch {
		case err == unix.ENOENT || err == unix.ENOTDIR:
			return fs.SkipDir
		case err != nil:
			return os.NewSyscallError("inotify_add_watch", err)
		}
		r, err := filepath.Rel(i.root, p)
		if err != nil {
			return err
		}
		i.dirs[int32(wd)] = r
		dbgprintf("inotify: watching %q (wd=%d)", r, wd)
		return nil
	})
}

// rmtree drops the watches of rel and every directory below it.
func (i *inotify) rmtree(rel string) {
	prefix := rel + string(os.PathSeparator)
	for wd, dir := range i.dirs {
		if dir == rel || strings.HasPrefix(dir, prefix) {
			if _, err := unix.InotifyRmWatch(i.fd, uint32(wd)); err != nil {
				dbgprintf("inotify: rm watch %q: %v", dir, err)
			}
		}
	}
}

// Associate implements system interface.
func (i *inotify) Associate(fn completion) (err error) {
	if i.epfd, err = unix.EpollCreate1(unix.EPOLL_CLOEXEC); err != nil {
		return os.NewSyscallError("epoll_create1", err)
	}
	if i.evfd, err = unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK); err != nil {
		return os.NewSyscallError("eventfd", err)
	}
	for _, fd := range []int{i.fd, i.evfd} {
		ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(fd)}
		if err := unix.EpollCtl(i.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
			return os.NewSyscallError("epoll_ctl", err)
		}
	}
	i.fn = fn
	i.exited = make(chan struct{})
	go i.loop()
	return nil
}

// Submit implements system interface.
func (i *inotify) Submit(p []byte) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	switch {
	case i.closing.Load():
		return ErrClosed
	case i.gone:
		return ErrDirectoryRemoved
	case i.fn == nil:
		return errors.New("dirwatch: inotify is not associated")
	}
	select {
	case i.reqs <- p:
		return nil
	default:
		return ErrBufferInFlight
	}
}

// Layout implements system interface.
func (i *inotify) Layout() Layout {
	return inotifyLayout{dir: i.lookup}
}

func (i *inotify) lookup(wd int32) (string, bool) {
	i.mu.Lock()
	dir, ok := i.dirs[wd]
	i.mu.Unlock()
	return dir, ok
}

func (i *inotify) loop() {
	defer close(i.exited)
	events := make([]unix.EpollEvent, 2)
	for {
		select {
		case p := <-i.reqs:
			n, err := i.read(p, events)
			if err == nil {
				i.track(p[:n])
			}
			i.fn(n, err)
		case <-i.quit:
			select {
			case <-i.reqs:
				i.fn(0, ErrClosed)
			default:
			}
			return
		}
	}
}

// read blocks until the inotify descriptor has events or Dissociate was
// called, in which case it gives ErrClosed.
func (i *inotify) read(p []byte, events []unix.EpollEvent) (int, error) {
	for {
		if i.closing.Load() {
			return 0, ErrClosed
		}
		n, err := unix.Read(i.fd, p)
		switch err {
		case nil:
			return n, nil
		case unix.EINTR:
			continue
		case unix.EAGAIN:
			if _, err := unix.EpollWait(i.epfd, events, -1); err != nil && err != unix.EINTR {
				return 0, os.NewSyscallError("epoll_wait", err)
			}
		default:
			// EINVAL means p cannot hold even a single event.
			return 0, os.NewSyscallError("read", err)
		}
	}
}

// track keeps the watch descriptors in sync with the tree before the batch
// is handed over: new and moved-in directories get watched, moved-out ones
// are dropped. Descriptors the kernel removed are forgotten one batch later,
// so the records of the current batch still resolve.
func (i *inotify) track(p []byte) {
	i.mu.Lock()
	defer i.mu.Unlock()
	for _, wd := range i.dead {
		delete(i.dirs, wd)
	}
	i.dead = i.dead[:0]
	for off := 0; off+unix.SizeofInotifyEvent <= len(p); {
		wd := int32(ne.Uint32(p[off:]))
		mask := ne.Uint32(p[off+4:])
		namelen := int(ne.Uint32(p[off+12:]))
		start := off + unix.SizeofInotifyEvent
		if start+namelen > len(p) {
			return
		}
		name := string(bytes.TrimRight(p[start:start+namelen], "\x00"))
		off = start + namelen
		dir, ok := i.dirs[wd]
		switch {
		case mask&unix.IN_IGNORED != 0:
			i.dead = append(i.dead, wd)
			if wd == i.rootwd {
				i.gone = true
			}
		case mask&(unix.IN_DELETE_SELF|unix.IN_MOVE_SELF) != 0:
			if wd == i.rootwd {
				i.gone = true
			}
		case !ok || mask&unix.IN_ISDIR == 0:
		case mask&(unix.IN_CREATE|unix.IN_MOVED_TO) != 0:
			if err := i.addtree(filepath.Join(dir, name)); err != nil {
				dbgprintf("inotify: watching new directory %q: %v", name, err)
			}
		case mask&unix.IN_MOVED_FROM != 0:
			i.rmtree(filepath.Join(dir, name))
		}
	}
}

// Dissociate implements system interface.
func (i *inotify) Dissociate() error {
	i.dissociate.Do(func() {
		i.mu.Lock()
		i.closing.Store(true)
		i.mu.Unlock()
		if i.exited != nil {
			close(i.quit)
			var one [8]byte
			ne.PutUint64(one[:], 1)
			if _, err := unix.Write(i.evfd, one[:]); err != nil {
				i.derr = os.NewSyscallError("write", err)
			}
			<-i.exited
		}
		for _, fd := range []int{i.evfd, i.epfd} {
			if fd != -1 {
				if err := unix.Close(fd); err != nil && i.derr == nil {
					i.derr = os.NewSyscallError("close", err)
				}
			}
		}
		i.evfd, i.epfd = -1, -1
	})
	return i.derr
}

// Close implements system interface.
func (i *inotify) Close() error {
	i.close.Do(func() {
		i.cerr = i.Dissociate()
		if i.fd != -1 {
			if err := unix.Close(i.fd); err != nil && i.cerr == nil {
				i.cerr = os.NewSyscallError("close", err)
			}
			i.fd = -1
		}
	})
	return i.cerr
}
