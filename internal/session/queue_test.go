package session

import (
	"fmt"
	"testing"

	"github.com/sebastianuxd/decky-stt-keyboard/internal/protocol"
)

func TestQueueBounding(t *testing.T) {
	q := NewQueue(100)
	for i := 0; i < 150; i++ {
		q.Push(protocol.Result{Text: fmt.Sprintf("f%d", i), Final: true})
	}
	if q.Len() != 100 {
		t.Fatalf("expected 100 queued, got %d", q.Len())
	}
	if q.Dropped() != 50 {
		t.Fatalf("expected 50 dropped, got %d", q.Dropped())
	}

	batch := q.DrainAll()
	if len(batch) != 100 {
		t.Fatalf("expected 100 drained, got %d", len(batch))
	}
	for i, r := range batch {
		want := fmt.Sprintf("f%d", i+50)
		if r.Text != want {
			t.Fatalf("entry %d: got %q want %q", i, r.Text, want)
		}
	}

	if again := q.DrainAll(); len(again) != 0 {
		t.Fatalf("expected empty second drain, got %d", len(again))
	}
}

func TestQueuePartialCoalescing(t *testing.T) {
	q := NewQueue(100)
	q.Push(protocol.Result{Text: "a"})
	q.Push(protocol.Result{Text: "ab"})

	batch := q.DrainAll()
	if len(batch) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(batch))
	}
	if batch[0].Text != "ab" || batch[0].Final {
		t.Fatalf("expected partial \"ab\", got %+v", batch[0])
	}
}

func TestQueueFinalNeverCoalesced(t *testing.T) {
	q := NewQueue(100)
	q.Push(protocol.Result{Text: "hello", Final: true})
	q.Push(protocol.Result{Text: "wor"})

	batch := q.DrainAll()
	if len(batch) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(batch))
	}
	if !batch[0].Final || batch[0].Text != "hello" {
		t.Fatalf("unexpected first entry: %+v", batch[0])
	}
	if batch[1].Final || batch[1].Text != "wor" {
		t.Fatalf("unexpected second entry: %+v", batch[1])
	}
}

func TestQueuePartialReplacedAcrossFinals(t *testing.T) {
	q := NewQueue(100)
	q.Push(protocol.Result{Text: "par"})
	q.Push(protocol.Result{Text: "done", Final: true})
	q.Push(protocol.Result{Text: "next"})

	batch := q.DrainAll()
	if len(batch) != 2 {
		t.Fatalf("expected stale partial replaced, got %d entries", len(batch))
	}
	if !batch[0].Final {
		t.Fatalf("expected final first, got %+v", batch[0])
	}
	if batch[1].Text != "next" {
		t.Fatalf("expected newest partial last, got %+v", batch[1])
	}
}

func TestQueueDrainPreservesOrder(t *testing.T) {
	q := NewQueue(10)
	q.Push(protocol.Result{Text: "one", Final: true})
	q.Push(protocol.Result{Text: "two", Final: true})
	q.Push(protocol.Result{Text: "three", Final: true})

	batch := q.DrainAll()
	want := []string{"one", "two", "three"}
	for i, text := range want {
		if batch[i].Text != text {
			t.Fatalf("entry %d: got %q want %q", i, batch[i].Text, text)
		}
	}
}
