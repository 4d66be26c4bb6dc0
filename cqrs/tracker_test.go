package cqrs

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newNotesTracker(notes *[]string) *ChangeTracker {
	tr := NewChangeTracker(nil)
	Handle(tr.Applier(), func(e noted) { *notes = append(*notes, e.Text) })
	return tr
}

func TestDrainWithoutApplyIsEmpty(t *testing.T) {
	var notes []string
	tr := newNotesTracker(&notes)
	require.Empty(t, tr.Drain())
	require.False(t, tr.HasChanges())

	Replay(tr, noted{Text: "replayed"})
	require.Empty(t, tr.Drain())
	require.Equal(t, []string{"replayed"}, notes)
}

func TestChangesDoNotClearAndDrainDoes(t *testing.T) {
	var notes []string
	tr := newNotesTracker(&notes)
	tr.Apply(noted{LedgerID: "l", Text: "a"})
	tr.Apply(noted{LedgerID: "l", Text: "b"})

	want := []DomainEvent{noted{LedgerID: "l", Text: "a"}, noted{LedgerID: "l", Text: "b"}}
	require.Equal(t, want, tr.Changes())
	require.Equal(t, want, tr.Changes())
	require.True(t, tr.HasChanges())

	require.Equal(t, want, tr.Drain())
	require.Empty(t, tr.Drain())
	require.False(t, tr.HasChanges())
	require.Equal(t, []string{"a", "b"}, notes)
}

func TestTrackerDoesNotRecordWhenHandlerMissing(t *testing.T) {
	tr := NewChangeTracker(nil)
	require.Panics(t, func() { tr.Apply(stray{}) })
	require.False(t, tr.HasChanges())
}

func TestSharedClockOrdersChanges(t *testing.T) {
	clock := &Clock{}
	first, second := NewChangeTracker(clock), NewChangeTracker(clock)
	Handle(first.Applier(), func(noted) {})
	Handle(second.Applier(), func(noted) {})

	second.Apply(noted{Text: "1"})
	first.Apply(noted{Text: "2"})
	second.Apply(noted{Text: "3"})

	s := second.DrainChanges()
	f := first.DrainChanges()
	require.Len(t, s, 2)
	require.Less(t, s[0].Seq, f[0].Seq)
	require.Less(t, f[0].Seq, s[1].Seq)
}
