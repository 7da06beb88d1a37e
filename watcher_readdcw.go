//go:build windows

package dirwatch

import (
	"os"
	"sync"
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"
)

// ReadDirectoryChangesExW is missing from older systems, in which case
// ReadDirectoryChangesW and the basic record layout are used.
var (
	modkernel32                 = windows.NewLazySystemDLL("kernel32.dll")
	procReadDirectoryChangesExW = modkernel32.NewProc("ReadDirectoryChangesExW")
)

const readDirectoryNotifyExtendedInformation = 2

const readdcwFilter = windows.FILE_NOTIFY_CHANGE_FILE_NAME | windows.FILE_NOTIFY_CHANGE_DIR_NAME

// readdcw watches a directory tree with a single ReadDirectoryChangesExW
// request at a time. The directory handle is associated with its own I/O
// completion port, which is drained by a single goroutine.
//
// The overlapped structure and the buffer of the outstanding request are
// referenced from readdcw until the completion is dequeued, the system
// writes into both.
type readdcw struct {
	path     string
	handle   windows.Handle
	port     windows.Handle
	ov       *windows.Overlapped
	extended bool

	mu      sync.Mutex
	buf     []byte
	pending bool
	closing bool

	fn     completion
	exited chan struct{}

	dissociate sync.Once
	close      sync.Once
	derr, cerr error
}

func newReaddcw() *readdcw {
	return &readdcw{
		handle:   windows.InvalidHandle,
		port:     windows.InvalidHandle,
		ov:       &windows.Overlapped{},
		extended: procReadDirectoryChangesExW.Find() == nil,
	}
}

// Open implements system interface.
func (r *readdcw) Open(path string) error {
	pathw, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return &OpenError{Path: path, Err: err}
	}
	h, err := windows.CreateFile(
		pathw,
		windows.FILE_LIST_DIRECTORY,
		windows.FILE_SHARE_READ|windows.FILE_SHARE_WRITE|windows.FILE_SHARE_DELETE,
		nil,
		windows.OPEN_EXISTING,
		windows.FILE_FLAG_BACKUP_SEMANTICS|windows.FILE_FLAG_OVERLAPPED,
		0,
	)
	if err != nil {
		return &OpenError{Path: path, Err: os.NewSyscallError("CreateFile", err)}
	}
	var fi windows.ByHandleFileInformation
	if err := windows.GetFileInformationByHandle(h, &fi); err != nil {
		windows.CloseHandle(h)
		return &OpenError{Path: path, Err: os.NewSyscallError("GetFileInformationByHandle", err)}
	}
	if fi.FileAttributes&windows.FILE_ATTRIBUTE_DIRECTORY == 0 {
		windows.CloseHandle(h)
		return &OpenError{Path: path, Err: errNotDir}
	}
	r.path, r.handle = path, h
	dbgprintf("readdcw: opened %q (extended=%t)", path, r.extended)
	return nil
}

// Associate implements system interface.
func (r *readdcw) Associate(fn completion) error {
	port, err := windows.CreateIoCompletionPort(r.handle, 0, 0, 0)
	if err != nil {
		return os.NewSyscallError("CreateIoCompletionPort", err)
	}
	r.port, r.fn = port, fn
	r.exited = make(chan struct{})
	go r.loop()
	return nil
}

// Submit implements system interface.
func (r *readdcw) Submit(p []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch {
	case r.closing:
		return ErrClosed
	case r.pending:
		return ErrBufferInFlight
	case len(p) == 0:
		return syscall.EINVAL
	}
	*r.ov = windows.Overlapped{}
	r.buf, r.pending = p, true
	var err error
	if r.extended {
		err = readDirectoryChangesEx(r.handle, p, true, readdcwFilter, r.ov)
	} else {
		err = windows.ReadDirectoryChanges(r.handle, &p[0], uint32(len(p)), true, readdcwFilter, nil, r.ov, 0)
	}
	if err != nil {
		r.buf, r.pending = nil, false
		return os.NewSyscallError("ReadDirectoryChanges", err)
	}
	return nil
}

func readDirectoryChangesEx(h windows.Handle, p []byte, subtree bool, filter uint32, ov *windows.Overlapped) error {
	var watchSubtree uintptr
	if subtree {
		watchSubtree = 1
	}
	r1, _, e := procReadDirectoryChangesExW.Call(
		uintptr(h),
		uintptr(unsafe.Pointer(&p[0])),
		uintptr(len(p)),
		watchSubtree,
		uintptr(filter),
		0,
		uintptr(unsafe.Pointer(ov)),
		0,
		readDirectoryNotifyExtendedInformation,
	)
	if r1 != 0 {
		return nil
	}
	if errno, ok := e.(syscall.Errno); ok && errno != 0 {
		return errno
	}
	return syscall.EINVAL
}

// Layout implements system interface.
func (r *readdcw) Layout() Layout {
	if r.extended {
		return LayoutExtended
	}
	return LayoutBasic
}

func (r *readdcw) loop() {
	defer close(r.exited)
	for {
		var n uint32
		var key uintptr
		var ov *windows.Overlapped
		err := windows.GetQueuedCompletionStatus(r.port, &n, &key, &ov, windows.INFINITE)
		if ov == nil {
			if err != nil {
				dbgprintf("readdcw: %q: GetQueuedCompletionStatus: %v", r.path, err)
				return
			}
			// Wake-up posted by Dissociate.
			if r.drained() {
				return
			}
			continue
		}
		r.mu.Lock()
		r.buf, r.pending = nil, false
		r.mu.Unlock()
		switch err {
		case nil:
		case windows.ERROR_OPERATION_ABORTED:
			err = ErrClosed
		case windows.ERROR_NOTIFY_ENUM_DIR:
			n, err = 0, nil
		default:
			err = os.NewSyscallError("ReadDirectoryChanges", err)
		}
		r.fn(int(n), err)
		if r.drained() {
			return
		}
	}
}

func (r *readdcw) drained() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closing && !r.pending
}

// Dissociate implements system interface.
func (r *readdcw) Dissociate() error {
	r.dissociate.Do(func() {
		r.mu.Lock()
		r.closing = true
		pending := r.pending
		r.mu.Unlock()
		if r.exited == nil {
			return
		}
		if pending {
			if err := windows.CancelIoEx(r.handle, r.ov); err != nil && err != windows.ERROR_NOT_FOUND {
				r.derr = os.NewSyscallError("CancelIoEx", err)
			}
		}
		if err := windows.PostQueuedCompletionStatus(r.port, 0, 0, nil); err != nil && r.derr == nil {
			r.derr = os.NewSyscallError("PostQueuedCompletionStatus", err)
		}
		<-r.exited
		if err := windows.CloseHandle(r.port); err != nil && r.derr == nil {
			r.derr = os.NewSyscallError("CloseHandle", err)
		}
		r.port = windows.InvalidHandle
	})
	return r.derr
}

// Close implements system interface.
func (r *readdcw) Close() error {
	r.close.Do(func() {
		r.cerr = r.Dissociate()
		if r.handle != windows.InvalidHandle {
			if err := windows.CloseHandle(r.handle); err != nil && r.cerr == nil {
				r.cerr = os.NewSyscallError("CloseHandle", err)
			}
			r.handle = windows.InvalidHandle
		}
	})
	return r.cerr
}
