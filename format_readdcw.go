package dirwatch

import "encoding/binary"

// Record layouts written by ReadDirectoryChangesW and ReadDirectoryChangesExW.
//
// Both are decoded on every platform, the portable facility encodes the
// changes it observes into LayoutExtended.
var (
	// LayoutExtended decodes FILE_NOTIFY_EXTENDED_INFORMATION records
	// (ReadDirectoryNotifyExtendedInformation).
	LayoutExtended Layout = extendedLayout{}

	// LayoutBasic decodes FILE_NOTIFY_INFORMATION records.
	LayoutBasic Layout = basicLayout{}
)

// FILE_NOTIFY_EXTENDED_INFORMATION field offsets.
const (
	extNextEntryOffset = 0
	extAction          = 4
	extCreationTime    = 8
	extLastModTime     = 16
	extLastChangeTime  = 24
	extLastAccessTime  = 32
	extAllocatedLength = 40
	extFileSize        = 48
	extFileAttributes  = 56
	extReparsePointTag = 60
	extFileID          = 64
	extParentFileID    = 72
	extFileNameLength  = 80
	extHeaderSize      = 84
)

// FILE_NOTIFY_INFORMATION field offsets.
const (
	basicNextEntryOffset = 0
	basicAction          = 4
	basicFileNameLength  = 8
	basicHeaderSize      = 12
)

var le = binary.LittleEndian

type extendedLayout struct{}

func (extendedLayout) Decode(p []byte, off int) (Record, int, error) {
	h := p[off:]
	if len(h) < extHeaderSize {
		return Record{}, 0, corrupt(off, "truncated extended record header")
	}
	namelen := int(le.Uint32(h[extFileNameLength:]))
	if namelen > len(h)-extHeaderSize {
		return Record{}, 0, corrupt(off, "file name runs past the buffer")
	}
	name, err := decodeUTF16(off, h[extHeaderSize:extHeaderSize+namelen])
	if err != nil {
		return Record{}, 0, err
	}
	next, err := nextEntry(off, le.Uint32(h[extNextEntryOffset:]), extHeaderSize+namelen)
	if err != nil {
		return Record{}, 0, err
	}
	rec := Record{
		Action: Action(le.Uint32(h[extAction:])),
		Name:   name,
		Ext: &Extended{
			CreationTime:  filetime(int64(le.Uint64(h[extCreationTime:]))),
			ModTime:       filetime(int64(le.Uint64(h[extLastModTime:]))),
			ChangeTime:    filetime(int64(le.Uint64(h[extLastChangeTime:]))),
			AccessTime:    filetime(int64(le.Uint64(h[extLastAccessTime:]))),
			AllocatedSize: int64(le.Uint64(h[extAllocatedLength:])),
			Size:          int64(le.Uint64(h[extFileSize:])),
			Attributes:    le.Uint32(h[extFileAttributes:]),
			ReparseTag:    le.Uint32(h[extReparsePointTag:]),
			FileID:        int64(le.Uint64(h[extFileID:])),
			ParentFileID:  int64(le.Uint64(h[extParentFileID:])),
		},
	}
	return rec, next, nil
}

type basicLayout struct{}

func (basicLayout) Decode(p []byte, off int) (Record, int, error) {
	h := p[off:]
	if len(h) < basicHeaderSize {
		return Record{}, 0, corrupt(off, "truncated record header")
	}
	namelen := int(le.Uint32(h[basicFileNameLength:]))
	if namelen > len(h)-basicHeaderSize {
		return Record{}, 0, corrupt(off, "file name runs past the buffer")
	}
	name, err := decodeUTF16(off, h[basicHeaderSize:basicHeaderSize+namelen])
	if err != nil {
		return Record{}, 0, err
	}
	next, err := nextEntry(off, le.Uint32(h[basicNextEntryOffset:]), basicHeaderSize+namelen)
	if err != nil {
		return Record{}, 0, err
	}
	return Record{Action: Action(le.Uint32(h[basicAction:])), Name: name}, next, nil
}

// nextEntry turns a relative NextEntryOffset into an absolute one. The
// following record may not overlap the current one and starts on a DWORD
// boundary.
func nextEntry(off int, rel uint32, size int) (int, error) {
	switch {
	case rel == 0:
		return 0, nil
	case rel%4 != 0:
		return 0, corrupt(off, "misaligned next entry offset")
	case int(rel) < size:
		return 0, corrupt(off, "next entry overlaps the current one")
	}
	return off + int(rel), nil
}
