package dirwatch

import (
	"sync"
	"testing"
	"time"
)

type Type string

const (
	TypeInvalid    = Type("Invalid")
	TypeOpen       = Type("Open")
	TypeAssociate  = Type("Associate")
	TypeSubmit     = Type("Submit")
	TypeDissociate = Type("Dissociate")
	TypeClose      = Type("Close")
)

type Call struct {
	T Type
	P string
	N int
}

// Spy is a system which records calls made to it. Reads complete only when
// the test asks for it, from the test goroutine.
type Spy struct {
	OpenErr      error
	AssociateErr error
	SubmitErr    func(i int) error // consulted for the i-th Submit, 0-based

	mu      sync.Mutex
	calls   []Call
	layout  Layout
	fn      completion
	p       []byte // buffer of the outstanding read
	snap    []byte // content of p at submission
	submits int
	reqs    chan struct{}
}

func NewSpy() *Spy {
	return &Spy{layout: LayoutExtended, reqs: make(chan struct{}, 64)}
}

func (s *Spy) record(c Call) {
	s.mu.Lock()
	s.calls = append(s.calls, c)
	s.mu.Unlock()
}

func (s *Spy) Open(path string) error {
	s.record(Call{T: TypeOpen, P: path})
	return s.OpenErr
}

func (s *Spy) Associate(fn completion) error {
	s.record(Call{T: TypeAssociate})
	if s.AssociateErr != nil {
		return s.AssociateErr
	}
	s.mu.Lock()
	s.fn = fn
	s.mu.Unlock()
	return nil
}

func (s *Spy) Submit(p []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, Call{T: TypeSubmit, N: len(p)})
	i := s.submits
	s.submits++
	if s.SubmitErr != nil {
		if err := s.SubmitErr(i); err != nil {
			return err
		}
	}
	if s.p != nil {
		return ErrBufferInFlight
	}
	s.p = p
	s.snap = append([]byte(nil), p...)
	s.reqs <- struct{}{}
	return nil
}

func (s *Spy) Layout() Layout {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.layout
}

func (s *Spy) Dissociate() error {
	s.record(Call{T: TypeDissociate})
	s.mu.Lock()
	fn, pending := s.fn, s.p != nil
	s.p, s.fn = nil, nil
	s.mu.Unlock()
	if pending {
		fn(0, ErrClosed)
	}
	return nil
}

func (s *Spy) Close() error {
	s.record(Call{T: TypeClose})
	return nil
}

// Calls gives the types of the calls made so far.
func (s *Spy) Calls() []Type {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := make([]Type, len(s.calls))
	for i, c := range s.calls {
		t[i] = c.T
	}
	return t
}

// Submits gives the number of Submit calls.
func (s *Spy) Submits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.submits
}

// Outstanding gives the buffer of the outstanding read and its content at
// the time it was submitted.
func (s *Spy) Outstanding() (p, snap []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.p, s.snap
}

// WaitSubmit blocks until a read is submitted.
func (s *Spy) WaitSubmit(t *testing.T) {
	t.Helper()
	select {
	case <-s.reqs:
	case <-time.After(timeout()):
		t.Fatalf("timed out after %v waiting for Submit", timeout())
	}
}

// CompleteRaw completes the outstanding read with n bytes and err.
func (s *Spy) CompleteRaw(t *testing.T, n int, err error) {
	t.Helper()
	s.mu.Lock()
	fn, p := s.fn, s.p
	s.p = nil
	s.mu.Unlock()
	if p == nil {
		t.Fatal("no outstanding read to complete")
	}
	fn(n, err)
}

// Complete writes recs into the outstanding buffer, the way the system would,
// and completes the read.
func (s *Spy) Complete(t *testing.T, recs ...Record) {
	t.Helper()
	s.mu.Lock()
	p := s.p
	s.mu.Unlock()
	if p == nil {
		t.Fatal("no outstanding read to complete")
	}
	n, m := PutExtended(p, recs)
	if m != len(recs) {
		t.Fatalf("want %d records to fit the buffer; got %d", len(recs), m)
	}
	s.CompleteRaw(t, n, nil)
}

// Fill writes raw into the outstanding buffer and completes the read.
func (s *Spy) Fill(t *testing.T, raw []byte) {
	t.Helper()
	s.mu.Lock()
	p := s.p
	s.mu.Unlock()
	if p == nil {
		t.Fatal("no outstanding read to complete")
	}
	s.CompleteRaw(t, copy(p, raw), nil)
}

// countingLayout counts Decode calls of the wrapped layout.
type countingLayout struct {
	Layout
	mu sync.Mutex
	n  int
}

func (c *countingLayout) Decode(p []byte, off int) (Record, int, error) {
	c.mu.Lock()
	c.n++
	c.mu.Unlock()
	return c.Layout.Decode(p, off)
}

func (c *countingLayout) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

// Collector is a Handler which keeps every record it receives.
type Collector struct {
	mu   sync.Mutex
	recs []Record
	c    chan Record
}

func NewCollector() *Collector {
	return &Collector{c: make(chan Record, 256)}
}

func (c *Collector) Handle(r Record) {
	c.mu.Lock()
	c.recs = append(c.recs, r)
	c.mu.Unlock()
	select {
	case c.c <- r:
	default:
	}
}

func (c *Collector) Records() []Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Record(nil), c.recs...)
}
