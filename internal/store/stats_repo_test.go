package store

import "testing"

func TestStatsDeltaAdd(t *testing.T) {
	t.Parallel()

	var total StatsDelta
	if !total.IsZero() {
		t.Fatal("expected zero delta")
	}
	total.Add(StatsDelta{PagesCompleted: 1, LinksFound: 4, URLsQueued: 2})
	total.Add(StatsDelta{PagesSkipped: 3, FetchErrors: 1, TaskErrors: 1})
	want := StatsDelta{PagesCompleted: 1, PagesSkipped: 3, FetchErrors: 1, TaskErrors: 1, LinksFound: 4, URLsQueued: 2}
	if total != want {
		t.Fatalf("unexpected totals %+v", total)
	}
	if total.IsZero() {
		t.Fatal("expected non-zero delta")
	}
}
