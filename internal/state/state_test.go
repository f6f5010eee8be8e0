package state

import (
	"testing"

	"github.com/firi-app/firi/internal/research"
)

func TestUpdateIsLeftFoldOfMerges(t *testing.T) {
	st := NewStore(AppState{View: ViewDashboard, Tokens: 3})
	st.Update(func(s *AppState) { s.Topic = "magnets" })
	st.Update(func(s *AppState) { s.Tokens = 2 })
	st.Update(func(s *AppState) { s.View = ViewResults })
	got := st.Get()
	if got.Topic != "magnets" || got.Tokens != 2 || got.View != ViewResults {
		t.Fatalf("merged snapshot wrong: %+v", got)
	}
	// Untouched field keeps its initial value.
	if got.AuthStatus != "" || got.IsIdeating {
		t.Fatalf("untouched fields changed: %+v", got)
	}
}

func TestUpdateAtDiscardsStaleMerge(t *testing.T) {
	st := NewStore(AppState{View: ViewProject})
	epoch := st.Epoch()
	st.Advance() // navigation happened while the flow was in flight
	ok := st.UpdateAt(epoch, func(s *AppState) { s.Timeline = "stale" })
	if ok {
		t.Fatal("stale merge was applied")
	}
	if st.Get().Timeline != "" {
		t.Fatalf("stale write leaked: %q", st.Get().Timeline)
	}
	if !st.UpdateAt(st.Epoch(), func(s *AppState) { s.Timeline = "fresh" }) {
		t.Fatal("current-epoch merge rejected")
	}
	if st.Get().Timeline != "fresh" {
		t.Fatalf("merge lost: %q", st.Get().Timeline)
	}
}

func TestOnChangeSeesOldAndNew(t *testing.T) {
	st := NewStore(AppState{Tokens: 5})
	var oldTokens, newTokens int
	st.OnChange(func(old, next AppState) {
		oldTokens = old.Tokens
		newTokens = next.Tokens
	})
	st.Update(func(s *AppState) { s.Tokens = 4 })
	if oldTokens != 5 || newTokens != 4 {
		t.Fatalf("observer saw %d -> %d", oldTokens, newTokens)
	}
}

func TestTranscriptChanged(t *testing.T) {
	old := AppState{ChatHistory: []research.ChatMessage{{Role: research.RoleUser, Content: "hi"}}}
	same := old
	if TranscriptChanged(old, same) {
		t.Fatal("unchanged transcript reported as changed")
	}
	grown := old
	grown.ChatHistory = append(grown.ChatHistory[:1:1], research.ChatMessage{Role: research.RoleModel, Content: "hello"})
	if !TranscriptChanged(old, grown) {
		t.Fatal("appended turn not detected")
	}
	busy := old
	busy.IsLoading = true
	if !TranscriptChanged(old, busy) {
		t.Fatal("loading flip not detected")
	}
}

func TestGuestIdentity(t *testing.T) {
	s := AppState{User: &Identity{Kind: IdentityGuest, DisplayName: "Guest"}}
	if !s.Guest() {
		t.Fatal("guest identity not recognized")
	}
	s.User = &Identity{Kind: IdentityUser, Email: "a@b.c"}
	if s.Guest() {
		t.Fatal("user identity reported as guest")
	}
}
