package dirwatch

import (
	"bytes"
	"testing"
	"time"
)

func TestActionString(t *testing.T) {
	cases := map[Action]string{
		Added:       "Added",
		Removed:     "Removed",
		Modified:    "Modified",
		RenamedFrom: "Renamed from",
		RenamedTo:   "Renamed to",
		0:           "Action(0)",
		42:          "Action(42)",
	}
	for a, want := range cases {
		if s := a.String(); s != want {
			t.Errorf("want String()=%q; got %q (action=%d)", want, s, uint32(a))
		}
	}
}

func TestPrinter(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)
	for _, r := range []Record{
		{Action: Added, Name: "a.txt"},
		{Action: RenamedFrom, Name: "a.txt"},
		{Action: RenamedTo, Name: "b.txt"},
		{Action: 9, Name: `dir\c.txt`},
	} {
		p.Handle(r)
	}
	want := "Added a.txt\nRenamed from a.txt\nRenamed to b.txt\nAction(9) dir\\c.txt\n"
	if got := buf.String(); got != want {
		t.Fatalf("want %q; got %q", want, got)
	}
}

func TestFiletime(t *testing.T) {
	if ft := tofiletime(time.Unix(0, 0)); ft != filetimeEpoch {
		t.Fatalf("want %d; got %d", int64(filetimeEpoch), ft)
	}
	if tm := filetime(0); !tm.IsZero() {
		t.Fatalf("want zero time for a zero FILETIME; got %v", tm)
	}
	now := time.Now().Truncate(100 * time.Nanosecond)
	if tm := filetime(tofiletime(now)); !tm.Equal(now) {
		t.Fatalf("want %v; got %v", now, tm)
	}
}
