package job

import (
	"testing"
	"time"

	"github.com/doconv/convertd/internal/convert"
)

func TestStore_Create(t *testing.T) {
	store := NewStore()
	j := store.Create("doc.pdf", convert.FormatMarkdown, convert.Options{IncludeImages: true})

	if j.ID == "" {
		t.Error("expected job ID")
	}
	if j.Status != StatusQueued {
		t.Errorf("expected queued, got %s", j.Status)
	}
	if j.Progress != 0 {
		t.Errorf("expected progress 0, got %d", j.Progress)
	}
	if j.Result != nil {
		t.Error("expected no result on a fresh job")
	}
	if j.SubmittedAt.IsZero() {
		t.Error("expected submitted_at")
	}
}

func TestStore_GetNotFound(t *testing.T) {
	store := NewStore()

	_, err := store.Get("nonexistent")
	if err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestStore_Lifecycle(t *testing.T) {
	store := NewStore()
	j := store.Create("doc.pdf", convert.FormatMarkdown, convert.Options{})

	if err := store.MarkProcessing(j.ID); err != nil {
		t.Fatalf("mark processing: %v", err)
	}
	got, _ := store.Get(j.ID)
	if got.Status != StatusProcessing {
		t.Errorf("expected processing, got %s", got.Status)
	}
	if got.Progress != 10 {
		t.Errorf("expected progress 10, got %d", got.Progress)
	}
	if got.Result != nil {
		t.Error("expected no result while processing")
	}

	res := &convert.Result{Success: true, Message: "Document converted successfully", Content: "# hi"}
	if err := store.Complete(j.ID, res); err != nil {
		t.Fatalf("complete: %v", err)
	}
	got, _ = store.Get(j.ID)
	if got.Status != StatusCompleted {
		t.Errorf("expected completed, got %s", got.Status)
	}
	if got.Progress != 100 {
		t.Errorf("expected progress 100, got %d", got.Progress)
	}
	if got.Result == nil || !got.Result.Success {
		t.Error("expected success result")
	}
	if got.CompletedAt == nil {
		t.Error("expected completed_at")
	}
}

func TestStore_TerminalIsImmutable(t *testing.T) {
	store := NewStore()
	j := store.Create("doc.pdf", convert.FormatMarkdown, convert.Options{})
	store.MarkProcessing(j.ID)
	store.Complete(j.ID, &convert.Result{Success: true, Content: "first"})

	if err := store.Fail(j.ID, &convert.Result{Success: false, Error: "late failure"}); err != ErrTerminal {
		t.Errorf("expected ErrTerminal, got %v", err)
	}
	if err := store.MarkProcessing(j.ID); err != ErrTerminal {
		t.Errorf("expected ErrTerminal, got %v", err)
	}

	got, _ := store.Get(j.ID)
	if got.Status != StatusCompleted || got.Result.Content != "first" {
		t.Error("terminal job must not change")
	}
}

func TestStore_ProgressNeverDecreases(t *testing.T) {
	store := NewStore()
	j := store.Create("doc.pdf", convert.FormatMarkdown, convert.Options{})
	store.MarkProcessing(j.ID)
	store.SetProgress(j.ID, 90)

	if err := store.SetProgress(j.ID, 50); err != nil {
		t.Fatalf("set progress: %v", err)
	}
	got, _ := store.Get(j.ID)
	if got.Progress != 90 {
		t.Errorf("expected progress to stay at 90, got %d", got.Progress)
	}
}

func TestStore_GetReturnsCopy(t *testing.T) {
	store := NewStore()
	j := store.Create("doc.pdf", convert.FormatMarkdown, convert.Options{})

	got, _ := store.Get(j.ID)
	got.Status = StatusFailed
	got.Progress = 99

	again, _ := store.Get(j.ID)
	if again.Status != StatusQueued || again.Progress != 0 {
		t.Error("mutating a returned job must not affect the store")
	}
}

func TestStore_Stats(t *testing.T) {
	store := NewStore()
	a := store.Create("a.pdf", convert.FormatMarkdown, convert.Options{})
	b := store.Create("b.pdf", convert.FormatMarkdown, convert.Options{})
	store.Create("c.pdf", convert.FormatMarkdown, convert.Options{})

	store.MarkProcessing(a.ID)
	store.MarkProcessing(b.ID)
	store.Complete(b.ID, &convert.Result{Success: true})

	st := store.Stats()
	if st.Total != 3 {
		t.Errorf("expected 3 total, got %d", st.Total)
	}
	if st.Active != 1 {
		t.Errorf("expected 1 active, got %d", st.Active)
	}
	if st.Completed != 1 {
		t.Errorf("expected 1 completed, got %d", st.Completed)
	}
	if st.Queued != 1 {
		t.Errorf("expected 1 queued, got %d", st.Queued)
	}
	if st.Active+st.Completed+st.Failed > st.Total {
		t.Error("active+completed+failed must not exceed total")
	}
}

func TestStore_Sweep(t *testing.T) {
	store := NewStore()
	done := store.Create("old.pdf", convert.FormatMarkdown, convert.Options{})
	live := store.Create("live.pdf", convert.FormatMarkdown, convert.Options{})

	store.MarkProcessing(done.ID)
	store.Complete(done.ID, &convert.Result{Success: true})

	if n := store.Sweep(time.Hour); n != 0 {
		t.Errorf("expected nothing evicted before ttl, got %d", n)
	}

	if n := store.Sweep(0); n != 1 {
		t.Errorf("expected 1 evicted, got %d", n)
	}
	if _, err := store.Get(done.ID); err != ErrNotFound {
		t.Errorf("expected evicted job to be gone, got %v", err)
	}
	if _, err := store.Get(live.ID); err != nil {
		t.Errorf("queued job must survive the sweep: %v", err)
	}

	// Cumulative counters survive eviction.
	st := store.Stats()
	if st.Total != 2 || st.Completed != 1 {
		t.Errorf("expected total=2 completed=1 after sweep, got %+v", st)
	}
}

func TestStore_SnapshotOrder(t *testing.T) {
	store := NewStore()
	first := store.Create("1.pdf", convert.FormatMarkdown, convert.Options{})
	second := store.Create("2.pdf", convert.FormatMarkdown, convert.Options{})

	snap := store.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(snap))
	}
	if snap[0].ID != first.ID || snap[1].ID != second.ID {
		t.Error("snapshot must preserve submission order")
	}
}

func TestStore_List(t *testing.T) {
	store := NewStore()
	a := store.Create("a.pdf", convert.FormatMarkdown, convert.Options{})
	store.Create("b.pdf", convert.FormatMarkdown, convert.Options{})
	store.MarkProcessing(a.ID)

	jobs, total := store.List(10, 0, "queued")
	if total != 1 {
		t.Errorf("expected 1 queued, got %d", total)
	}
	if len(jobs) != 1 || jobs[0].Filename != "b.pdf" {
		t.Errorf("unexpected listing: %+v", jobs)
	}

	_, total = store.List(10, 0, "")
	if total != 2 {
		t.Errorf("expected 2 total, got %d", total)
	}
}

func TestStore_Notify(t *testing.T) {
	store := NewStore()
	var events []Event
	store.SetNotify(func(ev Event) { events = append(events, ev) })

	j := store.Create("doc.pdf", convert.FormatMarkdown, convert.Options{})
	store.MarkProcessing(j.ID)
	store.Complete(j.ID, &convert.Result{Success: true})

	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	if events[0].Status != StatusQueued || events[1].Status != StatusProcessing || events[2].Status != StatusCompleted {
		t.Errorf("unexpected event order: %+v", events)
	}
	if events[2].Progress != 100 {
		t.Errorf("expected terminal progress 100, got %d", events[2].Progress)
	}
	// Sequence numbers must reflect transition order so a consumer can
	// detect an event delivered late.
	for i, ev := range events {
		if ev.Seq != uint64(i+1) {
			t.Errorf("event %d: Seq = %d, want %d", i, ev.Seq, i+1)
		}
	}
}
