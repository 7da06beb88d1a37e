package dirwatch

import (
	"fmt"
	"io"
)

// Handler receives every record decoded from a completed read, in the order
// the facility reported them. Handle is called from the facility's dispatch
// goroutine and must not block for long, the next read is armed only after
// it returns for the last record of a batch. Handle may close the watcher,
// in which case the rest of the batch is dropped.
type Handler interface {
	Handle(Record)
}

// HandlerFunc is an adapter to allow the use of ordinary functions as
// Handlers.
type HandlerFunc func(Record)

// Handle calls f(r).
func (f HandlerFunc) Handle(r Record) { f(r) }

// Printer is a Handler which writes one "<Action> <Name>" line per record.
type Printer struct {
	W io.Writer
}

// NewPrinter gives a Printer writing to w.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{W: w}
}

// Handle implements Handler interface.
func (p *Printer) Handle(r Record) {
	if _, err := fmt.Fprintf(p.W, "%s %s\n", r.Action, r.Name); err != nil {
		dbgprintf("printer: %v", err)
	}
}
