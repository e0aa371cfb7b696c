package diaglog

import "testing"

func TestBuffer_EvictsOldestWhenFull(t *testing.T) {
	b, err := New(2)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	b.Add(Entry{Name: "first"})
	b.Add(Entry{Name: "second"})
	b.Add(Entry{Name: "third"})

	entries := b.Entries()
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	if entries[0].Name != "second" || entries[1].Name != "third" {
		t.Errorf("entries = [%s %s], want oldest evicted", entries[0].Name, entries[1].Name)
	}
}

func TestBuffer_EntriesOldestFirst(t *testing.T) {
	b, err := New(8)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	b.Add(Entry{Name: "a"})
	b.Add(Entry{Name: "b"})

	entries := b.Entries()
	if entries[0].Name != "a" || entries[1].Name != "b" {
		t.Errorf("entries = [%s %s], want insertion order", entries[0].Name, entries[1].Name)
	}
	if entries[0].Time.IsZero() {
		t.Error("Add must stamp entries missing a time")
	}
}

func TestBuffer_Clear(t *testing.T) {
	b, err := New(8)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	b.Add(Entry{Name: "a"})
	b.Clear()
	if b.Len() != 0 {
		t.Errorf("len = %d, want 0", b.Len())
	}
}

func TestBuffer_NilSafe(t *testing.T) {
	var b *Buffer
	b.Add(Entry{Name: "dropped"})
	if b.Len() != 0 || b.Entries() != nil {
		t.Error("nil buffer must discard entries")
	}
	b.Clear()
}
