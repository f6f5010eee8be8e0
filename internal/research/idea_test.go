package research

import (
	"testing"
	"time"
)

func TestClampScores(t *testing.T) {
	p := ProjectIdea{Impact: -3, Rigor: 11, Novelty: 10, WowFactor: 0}
	p.ClampScores()
	if p.Impact != 0 || p.Rigor != 10 || p.Novelty != 10 || p.WowFactor != 0 {
		t.Fatalf("clamp produced %d/%d/%d/%d", p.Impact, p.Rigor, p.Novelty, p.WowFactor)
	}
}

func TestDedupSourcesFirstTitleWins(t *testing.T) {
	in := []Source{
		{URI: "https://a.example", Title: "First"},
		{URI: "https://b.example", Title: "Other"},
		{URI: "https://a.example", Title: "Second"},
		{URI: "", Title: "no uri"},
	}
	out := DedupSources(in)
	if len(out) != 2 {
		t.Fatalf("expected 2 sources, got %d", len(out))
	}
	if out[0].URI != "https://a.example" || out[0].Title != "First" {
		t.Fatalf("first title did not win: %+v", out[0])
	}
}

func TestPushRecentDedupAndBound(t *testing.T) {
	now := time.Now()
	var list []RecentQuery
	list = PushRecent(list, "Volcanoes", now)
	list = PushRecent(list, "Magnets", now)
	list = PushRecent(list, "volcanoes", now)
	if len(list) != 2 {
		t.Fatalf("case-insensitive reinsert duplicated: %d entries", len(list))
	}
	if list[0].Topic != "volcanoes" {
		t.Fatalf("reinserted topic not at front: %q", list[0].Topic)
	}
	for i := 0; i < 20; i++ {
		list = PushRecent(list, string(rune('a'+i)), now)
	}
	if len(list) != MaxRecentQueries {
		t.Fatalf("list exceeded bound: %d", len(list))
	}
	if list[0].Topic != "t" {
		t.Fatalf("most recent topic not first: %q", list[0].Topic)
	}
}

func TestPushRecentIgnoresBlank(t *testing.T) {
	list := PushRecent(nil, "   ", time.Now())
	if len(list) != 0 {
		t.Fatalf("blank topic recorded")
	}
}
