//go:build linux

package dirwatch

import (
	"bytes"
	"encoding/binary"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// inotifyLayout decodes struct inotify_event records. Each record names its
// watch descriptor, dir resolves it to a directory relative to the watched
// root.
type inotifyLayout struct {
	dir func(wd int32) (string, bool)
}

var ne = binary.NativeEndian

func (l inotifyLayout) Decode(p []byte, off int) (Record, int, error) {
	h := p[off:]
	if len(h) < unix.SizeofInotifyEvent {
		return Record{}, 0, corrupt(off, "truncated inotify event header")
	}
	wd := int32(ne.Uint32(h[0:]))
	mask := ne.Uint32(h[4:])
	namelen := int(ne.Uint32(h[12:]))
	if namelen > len(h)-unix.SizeofInotifyEvent {
		return Record{}, 0, corrupt(off, "file name runs past the buffer")
	}
	next := off + unix.SizeofInotifyEvent + namelen
	if mask&unix.IN_Q_OVERFLOW != 0 {
		return Record{}, 0, ErrOverflow
	}
	action := maskaction(mask)
	if action == 0 || namelen == 0 {
		return Record{}, next, nil
	}
	dir, ok := l.dir(wd)
	if !ok {
		return Record{}, next, nil
	}
	name := string(bytes.TrimRight(h[unix.SizeofInotifyEvent:unix.SizeofInotifyEvent+namelen], "\x00"))
	return Record{Action: action, Name: filepath.Join(dir, name)}, next, nil
}

// maskaction translates inotify event mask into an Action. Masks which do
// not describe a change of a name within a watched directory give 0.
func maskaction(mask uint32) Action {
	switch {
	case mask&unix.IN_CREATE != 0:
		return Added
	case mask&unix.IN_DELETE != 0:
		return Removed
	case mask&unix.IN_MODIFY != 0:
		return Modified
	case mask&unix.IN_MOVED_FROM != 0:
		return RenamedFrom
	case mask&unix.IN_MOVED_TO != 0:
		return RenamedTo
	}
	return 0
}
