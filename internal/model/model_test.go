package model

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

// TestResultSet tests the concurrency-safe result collection.
func TestResultSet(t *testing.T) {
	t.Parallel()

	t.Run("new set is empty", func(t *testing.T) {
		t.Parallel()
		rs := NewResultSet()
		if rs.Len() != 0 {
			t.Errorf("expected empty set, got %d", rs.Len())
		}
		if got := rs.Results(); len(got) != 0 {
			t.Errorf("expected no results, got %v", got)
		}
	})

	t.Run("keeps arrival order", func(t *testing.T) {
		t.Parallel()
		rs := NewResultSet()
		rs.Add(StreamResult{Channel: Channel{Name: "b", URL: "https://e.example/b", Index: 1}})
		rs.Add(StreamResult{Channel: Channel{Name: "a", URL: "https://e.example/a", Index: 0}})

		got := rs.Results()
		if got[0].Channel.Name != "b" || got[1].Channel.Name != "a" {
			t.Errorf("expected arrival order b,a, got %s,%s", got[0].Channel.Name, got[1].Channel.Name)
		}
	})

	t.Run("sorted returns discovery order", func(t *testing.T) {
		t.Parallel()
		rs := NewResultSet()
		for _, i := range []int{2, 0, 1} {
			rs.Add(StreamResult{Channel: Channel{URL: fmt.Sprintf("https://e.example/%d", i), Index: i}})
		}
		got := rs.Sorted()
		for i, r := range got {
			if r.Channel.Index != i {
				t.Errorf("position %d: expected index %d, got %d", i, i, r.Channel.Index)
			}
		}
		if rs.Results()[0].Channel.Index != 2 {
			t.Error("expected Sorted not to reorder the set itself")
		}
	})

	t.Run("first result per channel wins", func(t *testing.T) {
		t.Parallel()
		rs := NewResultSet()
		ch := Channel{Name: "ESPN", URL: "https://e.example/espn"}
		if !rs.Add(StreamResult{Channel: ch, ManifestURL: "https://cdn.example/first.m3u8"}) {
			t.Fatal("expected first result to be kept")
		}
		if rs.Add(StreamResult{Channel: ch, ManifestURL: "https://cdn.example/second.m3u8"}) {
			t.Error("expected duplicate result to be dropped")
		}
		if !rs.Add(StreamResult{Channel: Channel{Name: "espn", URL: "https://e.example/ESPN"}, ManifestURL: "https://cdn.example/other.m3u8"}) {
			t.Error("expected URLs differing in case to be distinct channels")
		}
		got := rs.Results()
		if len(got) != 2 || got[0].ManifestURL != "https://cdn.example/first.m3u8" {
			t.Errorf("unexpected results %+v", got)
		}
	})

	t.Run("concurrent duplicates keep one", func(t *testing.T) {
		t.Parallel()
		rs := NewResultSet()
		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				rs.Add(StreamResult{Channel: Channel{URL: "https://e.example/same"}})
			}()
		}
		wg.Wait()
		if rs.Len() != 1 {
			t.Errorf("expected 1 result, got %d", rs.Len())
		}
	})

	t.Run("results is a copy", func(t *testing.T) {
		t.Parallel()
		rs := NewResultSet()
		rs.Add(StreamResult{ManifestURL: "https://cdn.example/a.m3u8"})
		got := rs.Results()
		got[0].ManifestURL = "changed"
		if rs.Results()[0].ManifestURL != "https://cdn.example/a.m3u8" {
			t.Error("expected Results to return a copy")
		}
	})

	t.Run("concurrent adds", func(t *testing.T) {
		t.Parallel()
		rs := NewResultSet()
		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				rs.Add(StreamResult{Channel: Channel{URL: fmt.Sprintf("https://e.example/%d", i), Index: i}})
			}(i)
		}
		wg.Wait()
		if rs.Len() != 50 {
			t.Errorf("expected 50 results, got %d", rs.Len())
		}
	})
}

// TestRun tests run bookkeeping.
func TestRun(t *testing.T) {
	t.Parallel()

	t.Run("new run has an id", func(t *testing.T) {
		t.Parallel()
		a := NewRun("https://timstreams.site/", "Sports")
		b := NewRun("https://timstreams.site/", "Sports")
		if a.ID == "" || a.ID == b.ID {
			t.Errorf("expected distinct non-empty ids, got %q and %q", a.ID, b.ID)
		}
		if a.Results == nil {
			t.Error("expected Results to be initialized")
		}
	})

	t.Run("summary counts", func(t *testing.T) {
		t.Parallel()
		run := NewRun("https://timstreams.site/", "")
		run.Channels = []Channel{{URL: "a"}, {URL: "b"}, {URL: "c"}}
		run.Results.Add(StreamResult{Channel: run.Channels[0]})
		run.AddUnresolved(Unresolved{Channel: run.Channels[1]})
		run.AddUnresolved(Unresolved{Channel: run.Channels[2], Reason: "timeout"})
		run.Filter = "none"
		run.FinishedAt = run.StartedAt.Add(3 * time.Second)

		s := run.Summary()
		if s.Discovered != 3 || s.Resolved != 1 || s.Unresolved != 2 {
			t.Errorf("unexpected summary %+v", s)
		}
		if s.Elapsed != 3*time.Second {
			t.Errorf("expected elapsed 3s, got %v", s.Elapsed)
		}
		if s.Filter != "none" {
			t.Errorf("expected filter none, got %q", s.Filter)
		}
	})

	t.Run("unfinished run has zero elapsed", func(t *testing.T) {
		t.Parallel()
		run := NewRun("https://timstreams.site/", "")
		if run.Summary().Elapsed != 0 {
			t.Error("expected zero elapsed")
		}
	})

	t.Run("steps are recorded in order", func(t *testing.T) {
		t.Parallel()
		run := NewRun("https://timstreams.site/", "")
		run.AddStep("discover")
		run.AddStep("resolve")
		if len(run.PerformedSteps) != 2 || run.PerformedSteps[1] != "resolve" {
			t.Errorf("unexpected steps %v", run.PerformedSteps)
		}
	})
}

func TestChannelKey(t *testing.T) {
	t.Parallel()

	c := Channel{Name: "News 24", URL: "https://timstreams.site/watch/News"}
	if c.Key() != "https://timstreams.site/watch/News" {
		t.Errorf("unexpected key %q", c.Key())
	}
	if c.Key() == (Channel{URL: "https://timstreams.site/watch/news"}).Key() {
		t.Error("expected keys to be case-sensitive")
	}
}
