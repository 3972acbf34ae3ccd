package existing

import "testing"

func sim(v float64) *float64 { return &v }

func TestMerge_URLBeforeTitleRegardlessOfSimilarity(t *testing.T) {
	urlMatch := CandidateMatch{ID: 1, MatchType: MatchURL}
	titleMatch := CandidateMatch{ID: 2, Similarity: sim(0.9), MatchType: MatchTitle}

	got := Merge([]CandidateMatch{urlMatch}, []CandidateMatch{titleMatch})
	if len(got) != 2 {
		t.Fatalf("len: got %d, want 2", len(got))
	}
	if got[0].ID != 1 || got[0].MatchType != MatchURL || got[0].Priority != PriorityURL {
		t.Fatalf("first: got %+v, want url match id=1", got[0])
	}
	if got[1].ID != 2 || got[1].MatchType != MatchTitle || got[1].Priority != PriorityTitle {
		t.Fatalf("second: got %+v, want title match id=2", got[1])
	}
}

func TestMerge_DedupKeepsURLTag(t *testing.T) {
	got := Merge(
		[]CandidateMatch{{ID: 5, Title: "from url"}},
		[]CandidateMatch{{ID: 5, Title: "from title", Similarity: sim(0.95)}, {ID: 6, Similarity: sim(0.8)}},
	)
	if len(got) != 2 {
		t.Fatalf("len: got %d, want 2", len(got))
	}
	if got[0].ID != 5 || got[0].MatchType != MatchURL || got[0].Title != "from url" {
		t.Fatalf("dedup: got %+v, want url match id=5", got[0])
	}
}

func TestMerge_SortsWithinPriorityBySimilarityStable(t *testing.T) {
	got := Merge(nil, []CandidateMatch{
		{ID: 1, Similarity: sim(0.8)},
		{ID: 2, Similarity: sim(0.9)},
		{ID: 3, Similarity: sim(0.8)},
		{ID: 4},
	})
	want := []int64{2, 1, 3, 4}
	for i, id := range want {
		if got[i].ID != id {
			t.Fatalf("pos %d: got %d, want %d", i, got[i].ID, id)
		}
	}
}

func TestMerge_Empty(t *testing.T) {
	got := Merge(nil, nil)
	if got == nil || len(got) != 0 {
		t.Fatalf("got %#v, want empty non-nil slice", got)
	}
}

func TestNewResolution_Invariants(t *testing.T) {
	res := NewResolution([]CandidateMatch{{ID: 42, URL: "https://example.com"}})
	if !res.OK || !res.Found || res.Count != 1 || len(res.Matches) != 1 {
		t.Fatalf("got %+v", res)
	}
	if res.CandidateMatch == nil || res.ID != 42 {
		t.Fatalf("flattened first match: got %+v", res.CandidateMatch)
	}

	empty := NotFound()
	if !empty.OK || empty.Found || empty.Count != 0 || empty.CandidateMatch != nil {
		t.Fatalf("NotFound: got %+v", empty)
	}
	if u := Unavailable(); u.OK || u.Found {
		t.Fatalf("Unavailable: got %+v", u)
	}
}
