package dirwatch

// PutExtended encodes recs into p using the FILE_NOTIFY_EXTENDED_INFORMATION
// layout, exactly as ReadDirectoryChangesExW would have filled it. It stops
// at the first record which does not fit and returns the number of bytes and
// the number of records written.
func PutExtended(p []byte, recs []Record) (n, m int) {
	return putRecords(p, recs, extHeaderSize, 8, func(h []byte, r Record) {
		le.PutUint32(h[extAction:], uint32(r.Action))
		var ext Extended
		if r.Ext != nil {
			ext = *r.Ext
		}
		le.PutUint64(h[extCreationTime:], uint64(tofiletime(ext.CreationTime)))
		le.PutUint64(h[extLastModTime:], uint64(tofiletime(ext.ModTime)))
		le.PutUint64(h[extLastChangeTime:], uint64(tofiletime(ext.ChangeTime)))
		le.PutUint64(h[extLastAccessTime:], uint64(tofiletime(ext.AccessTime)))
		le.PutUint64(h[extAllocatedLength:], uint64(ext.AllocatedSize))
		le.PutUint64(h[extFileSize:], uint64(ext.Size))
		le.PutUint32(h[extFileAttributes:], ext.Attributes)
		le.PutUint32(h[extReparsePointTag:], ext.ReparseTag)
		le.PutUint64(h[extFileID:], uint64(ext.FileID))
		le.PutUint64(h[extParentFileID:], uint64(ext.ParentFileID))
	}, extFileNameLength)
}

// PutBasic encodes recs into p using the FILE_NOTIFY_INFORMATION layout.
func PutBasic(p []byte, recs []Record) (n, m int) {
	return putRecords(p, recs, basicHeaderSize, 4, func(h []byte, r Record) {
		le.PutUint32(h[basicAction:], uint32(r.Action))
	}, basicFileNameLength)
}

func putRecords(p []byte, recs []Record, hdr, align int, put func([]byte, Record), namelenOff int) (n, m int) {
	prev, off := -1, 0
	for _, r := range recs {
		name := encodeUTF16(r.Name)
		size := hdr + len(name)
		if off+size > len(p) {
			break
		}
		if prev >= 0 {
			clear(p[n:off])
			le.PutUint32(p[prev:], uint32(off-prev))
		}
		h := p[off : off+size]
		le.PutUint32(h, 0)
		put(h, r)
		le.PutUint32(h[namelenOff:], uint32(len(name)))
		copy(h[hdr:], name)
		prev, n = off, off+size
		off = (n + align - 1) &^ (align - 1)
		m++
	}
	return n, m
}
