package dirwatch

// completion is invoked by a facility once per submitted read, with the
// number of bytes written into the buffer and the status of the read.
type completion func(n int, err error)

// system wraps the change-notification facility of the host OS: inotify,
// ReadDirectoryChangesW or fsnotify.
//
// The contract is the same everywhere:
//
//   - Open opens the directory for watching, the subtree included.
//   - Associate registers the completion routine. It is called once, before
//     the first Submit.
//   - Submit arms exactly one read into p and returns without touching p.
//     The facility writes into p and calls the completion routine later, from
//     its own dispatch goroutine. Continuous watching means resubmitting from
//     within the completion routine.
//   - Dissociate cancels the outstanding read, waits until its completion
//     was delivered and ends the completion association. No completion is
//     delivered after it returns.
//   - Close releases the directory handle, dissociating first if needed.
//
// Dissociate and Close are safe to call more than once.
//
// Layout tells how the records written into p are decoded.
type system interface {
	Open(path string) error
	Associate(fn completion) error
	Submit(p []byte) error
	Layout() Layout
	Dissociate() error
	Close() error
}

// newSystem gives the facility selected for this platform. The portable one
// is used when asked for explicitly or when the native one is unavailable.
func newSystem(portable bool) system {
	if portable {
		return newFsnotify()
	}
	return newNative()
}
