package cqrs

// ledger is small aggregate used by tests of this package: root with notes
// and child lines that count something.

type opened struct{ LedgerID string }
type noted struct {
	LedgerID string
	Text     string
}
type lineAdded struct {
	LedgerID string
	LineID   string
}
type lineBumped struct {
	LedgerID string
	LineID   string
	To       int
}
type lineDropped struct {
	LedgerID string
	LineID   string
}
type stray struct{}

func (opened) EventID() EventID      { return "ledger.opened" }
func (e opened) AggregateID() string { return e.LedgerID }

func (noted) EventID() EventID      { return "ledger.noted" }
func (e noted) AggregateID() string { return e.LedgerID }

func (lineAdded) EventID() EventID      { return "ledger.line.added" }
func (e lineAdded) AggregateID() string { return e.LedgerID }

func (lineBumped) EventID() EventID      { return "ledger.line.bumped" }
func (e lineBumped) AggregateID() string { return e.LedgerID }

func (lineDropped) EventID() EventID      { return "ledger.line.dropped" }
func (e lineDropped) AggregateID() string { return e.LedgerID }

func (stray) EventID() EventID    { return "ledger.stray" }
func (stray) AggregateID() string { return "" }

type line struct {
	Base
	id    string
	count int
}

func newLine(clock *Clock, id string) *line {
	l := &line{Base: NewBase(clock), id: id}
	Handle(l.Applier(), func(e lineBumped) { l.count = e.To })
	return l
}

func (l *line) GetID() string { return l.id }

type ledger struct {
	Root
	id    string
	notes []string
	lines []*line
}

func newLedger() *ledger {
	l := &ledger{Root: NewRoot()}
	a := l.Applier()
	Handle(a, func(e opened) { l.id = e.LedgerID })
	Handle(a, func(e noted) { l.notes = append(l.notes, e.Text) })
	Handle(a, func(e lineAdded) { l.lines = append(l.lines, newLine(l.Clock(), e.LineID)) })
	Handle(a, func(e lineBumped) { Replay(l.line(e.LineID).ChangeTracker, e) })
	Handle(a, func(e lineDropped) {
		for i, ln := range l.lines {
			if ln.id == e.LineID {
				l.Retire(ln)
				l.lines = append(l.lines[:i], l.lines[i+1:]...)
				return
			}
		}
	})
	return l
}

func openLedger(id string) (*ledger, error) {
	l := newLedger()
	l.Apply(opened{LedgerID: id})
	return l, nil
}

func (l *ledger) GetID() string { return l.id }

func (l *ledger) line(id string) *line {
	for _, ln := range l.lines {
		if ln.id == id {
			return ln
		}
	}
	return nil
}

func (l *ledger) children() []Tracked {
	out := make([]Tracked, len(l.lines))
	for i, ln := range l.lines {
		out[i] = ln
	}
	return out
}

func (l *ledger) HasChanges() bool              { return l.Dirty(l.children()...) }
func (l *ledger) CollectChanges() []DomainEvent { return l.Collect(l.children()...) }

func (l *ledger) note(text string)       { l.Apply(noted{LedgerID: l.id, Text: text}) }
func (l *ledger) addLine(id string)      { l.Apply(lineAdded{LedgerID: l.id, LineID: id}) }
func (l *ledger) dropLine(id string)     { l.Apply(lineDropped{LedgerID: l.id, LineID: id}) }
func (l *ledger) bump(id string, to int) { l.line(id).Apply(lineBumped{LedgerID: l.id, LineID: id, To: to}) }

type ledgerState struct {
	ID    string
	Notes []string
	Lines map[string]int
}

func snapshotLedger(l *ledger) ledgerState {
	s := ledgerState{ID: l.id, Notes: append([]string(nil), l.notes...), Lines: map[string]int{}}
	for _, ln := range l.lines {
		s.Lines[ln.id] = ln.count
	}
	return s
}

func restoreLedger(s ledgerState) *ledger {
	l := newLedger()
	Replay(l.ChangeTracker, opened{LedgerID: s.ID})
	for _, n := range s.Notes {
		Replay(l.ChangeTracker, noted{LedgerID: s.ID, Text: n})
	}
	for id, count := range s.Lines {
		Replay(l.ChangeTracker, lineAdded{LedgerID: s.ID, LineID: id})
		Replay(l.ChangeTracker, lineBumped{LedgerID: s.ID, LineID: id, To: count})
	}
	return l
}

var _ AggregateRoot = &ledger{}
var _ Entity = &line{}
