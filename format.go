package dirwatch

import "golang.org/x/text/encoding/unicode"

// Layout decodes single records of one on-the-wire notification format.
type Layout interface {
	// Decode decodes the record which starts at off in p. It returns the
	// absolute offset of the following record, or 0 when the record is the
	// last one in the batch. Records with a zero Action carry no change and
	// are skipped by RecordReader.
	Decode(p []byte, off int) (rec Record, next int, err error)
}

// RecordReader walks the offset-linked record chain of one completed read.
//
// It works like bufio.Scanner:
//
//	r := NewRecordReader(LayoutExtended, p[:n])
//	for r.Next() {
//		fmt.Println(r.Record())
//	}
//	if err := r.Err(); err != nil {
//		...
//	}
//
// Records are copied out of p, but the reader itself must not be used after
// p is handed to another read.
type RecordReader struct {
	layout Layout
	p      []byte
	off    int
	done   bool
	rec    Record
	err    error
}

// NewRecordReader gives a reader over the batch stored in p.
func NewRecordReader(l Layout, p []byte) *RecordReader {
	return &RecordReader{layout: l, p: p}
}

// Next advances to the following record. It returns false when the chain
// ends or a record cannot be decoded, Err tells the two apart.
func (r *RecordReader) Next() bool {
	for !r.done {
		if r.off >= len(r.p) {
			r.done = true
			break
		}
		rec, next, err := r.layout.Decode(r.p, r.off)
		if err != nil {
			r.err, r.done = err, true
			break
		}
		switch {
		case next == 0 || next == len(r.p):
			r.done = true
		case next <= r.off:
			r.err, r.done = corrupt(r.off, "next offset does not advance"), true
			return false
		case next > len(r.p):
			r.err, r.done = corrupt(r.off, "next offset points past the buffer"), true
			return false
		}
		r.off = next
		if rec.Action == 0 {
			continue
		}
		r.rec = rec
		return true
	}
	return false
}

// Record gives the record decoded by the last successful Next call.
func (r *RecordReader) Record() Record { return r.rec }

// Err gives the first decoding error, if any.
func (r *RecordReader) Err() error { return r.err }

// ReadAll decodes the whole batch stored in p.
func ReadAll(l Layout, p []byte) ([]Record, error) {
	var recs []Record
	r := NewRecordReader(l, p)
	for r.Next() {
		recs = append(recs, r.Record())
	}
	return recs, r.Err()
}

var utf16le = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

func decodeUTF16(off int, p []byte) (string, error) {
	if len(p)%2 != 0 {
		return "", corrupt(off, "odd UTF-16 name length")
	}
	s, err := utf16le.NewDecoder().Bytes(p)
	if err != nil {
		return "", corrupt(off, err.Error())
	}
	return string(s), nil
}

func encodeUTF16(s string) []byte {
	p, err := utf16le.NewEncoder().Bytes([]byte(s))
	if err != nil {
		// The encoder replaces invalid UTF-8, it does not fail on it.
		panic("dirwatch: " + err.Error())
	}
	return p
}
