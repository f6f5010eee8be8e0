package session

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/firi-app/firi/internal/cache"
	"github.com/firi-app/firi/internal/meter"
	"github.com/firi-app/firi/internal/oracle"
	"github.com/firi-app/firi/internal/research"
	"github.com/firi-app/firi/internal/state"
	"github.com/firi-app/firi/internal/store"
)

type fakeOracle struct {
	generateCalls []oracle.GenerateRequest
	chatCalls     []oracle.ChatRequest
	generate      func(oracle.GenerateRequest) (oracle.GenerateResponse, error)
	chat          func(oracle.ChatRequest) (oracle.ChatResponse, error)
}

func (f *fakeOracle) Generate(_ context.Context, in oracle.GenerateRequest) (oracle.GenerateResponse, error) {
	f.generateCalls = append(f.generateCalls, in)
	if f.generate == nil {
		return oracle.GenerateResponse{}, errors.New("unscripted generate")
	}
	return f.generate(in)
}

func (f *fakeOracle) Chat(_ context.Context, in oracle.ChatRequest) (oracle.ChatResponse, error) {
	f.chatCalls = append(f.chatCalls, in)
	if f.chat == nil {
		return oracle.ChatResponse{}, errors.New("unscripted chat")
	}
	return f.chat(in)
}

type fakeProjects struct {
	byID      map[uuid.UUID]research.ProjectIdea
	order     []uuid.UUID
	saveErr   error
	deleteErr error
}

func newFakeProjects() *fakeProjects {
	return &fakeProjects{byID: map[uuid.UUID]research.ProjectIdea{}}
}

func (f *fakeProjects) Save(_ context.Context, _ uuid.UUID, idea research.ProjectIdea) (research.ProjectIdea, error) {
	if f.saveErr != nil {
		return research.ProjectIdea{}, f.saveErr
	}
	idea.ID = uuid.New()
	idea.LocalID = ""
	f.byID[idea.ID] = idea
	f.order = append([]uuid.UUID{idea.ID}, f.order...)
	return idea, nil
}

func (f *fakeProjects) List(_ context.Context, _ uuid.UUID, limit int) ([]research.ProjectIdea, error) {
	out := []research.ProjectIdea{}
	for _, id := range f.order {
		if len(out) == limit {
			break
		}
		out = append(out, f.byID[id])
	}
	return out, nil
}

func (f *fakeProjects) Favorites(_ context.Context, _ uuid.UUID) ([]research.ProjectIdea, error) {
	out := []research.ProjectIdea{}
	for _, id := range f.order {
		if f.byID[id].IsFavorited {
			out = append(out, f.byID[id])
		}
	}
	return out, nil
}

func (f *fakeProjects) Counts(_ context.Context, _ uuid.UUID) (int, int, error) {
	favs := 0
	for _, p := range f.byID {
		if p.IsFavorited {
			favs++
		}
	}
	return len(f.byID), favs, nil
}

func (f *fakeProjects) ToggleFavorite(_ context.Context, id uuid.UUID) error {
	p, ok := f.byID[id]
	if !ok {
		return errors.New("not found")
	}
	p.IsFavorited = !p.IsFavorited
	f.byID[id] = p
	return nil
}

func (f *fakeProjects) Delete(_ context.Context, id uuid.UUID) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	delete(f.byID, id)
	kept := f.order[:0]
	for _, have := range f.order {
		if have != id {
			kept = append(kept, have)
		}
	}
	f.order = kept
	return nil
}

func (f *fakeProjects) SetTimeline(_ context.Context, id uuid.UUID, timeline string) error {
	p, ok := f.byID[id]
	if !ok {
		return errors.New("not found")
	}
	p.Timeline = timeline
	f.byID[id] = p
	return nil
}

type fakeAccounts struct {
	record store.UserRecord
	plans  map[uuid.UUID]string
}

func (f *fakeAccounts) GetOrCreate(_ context.Context, email, name string, seed int) (store.UserRecord, error) {
	if f.record.ID == uuid.Nil {
		f.record = store.UserRecord{ID: uuid.New(), Email: email, DisplayName: name, Tokens: seed, Plan: "free"}
	}
	return f.record, nil
}

func (f *fakeAccounts) SetPlan(_ context.Context, id uuid.UUID, plan string) error {
	if f.plans == nil {
		f.plans = map[uuid.UUID]string{}
	}
	f.plans[id] = plan
	return nil
}

type nopPersister struct{ err error }

func (p nopPersister) SetTokens(context.Context, uuid.UUID, int) error { return p.err }

func ideasJSON(t *testing.T) string {
	t.Helper()
	raw := make([]map[string]any, 0, oracle.IdeaCount)
	for i := 0; i < oracle.IdeaCount; i++ {
		raw = append(raw, map[string]any{
			"title":         fmt.Sprintf("Idea %d", i+1),
			"description":   "A tractable experiment.",
			"category":      "Biology",
			"impact":        7,
			"rigor":         8,
			"novelty":       6,
			"wowFactor":     9,
			"resourcesHtml": "<ul><li>pH strips</li></ul>",
		})
	}
	b, err := json.Marshal(raw)
	require.NoError(t, err)
	return string(b)
}

func newHarness(t *testing.T, o *fakeOracle, p *fakeProjects) (*Controller, *state.Store) {
	t.Helper()
	st := state.NewStore(state.AppState{AuthStatus: state.AuthSignedOut, View: state.ViewDashboard})
	m := meter.New(st, nopPersister{})
	q := cache.NewRecentQueries(filepath.Join(t.TempDir(), "recent.json"))
	c := NewController(st, o, p, &fakeAccounts{}, m, q)
	return c, st
}

func signInGuestWith(st *state.Store, tokens int) {
	st.Update(func(s *state.AppState) {
		s.AuthStatus = state.AuthSignedIn
		s.User = &state.Identity{Kind: state.IdentityGuest, DisplayName: "Guest"}
		s.Tokens = tokens
		s.View = state.ViewDashboard
	})
}

func TestIdeateHappyPath(t *testing.T) {
	o := &fakeOracle{}
	o.generate = func(in oracle.GenerateRequest) (oracle.GenerateResponse, error) {
		if in.Grounded {
			return oracle.GenerateResponse{
				Text: "## Field analysis",
				Sources: []research.Source{
					{Title: "Paper", URI: "https://example.org/a"},
					{Title: "Dup", URI: "https://example.org/a"},
				},
			}, nil
		}
		return oracle.GenerateResponse{Text: ideasJSON(t)}, nil
	}
	c, st := newHarness(t, o, newFakeProjects())
	signInGuestWith(st, 1)

	c.Ideate(context.Background(), "  soil microbes  ")

	s := st.Get()
	assert.Equal(t, state.ViewResults, s.View)
	assert.False(t, s.IsIdeating)
	assert.Equal(t, 0, s.Tokens, "one token covers the whole flow")
	assert.Equal(t, "soil microbes", s.Topic)
	assert.Equal(t, "## Field analysis", s.FieldAnalysis)
	assert.Len(t, s.Sources, 1, "duplicate source URIs collapse")
	require.Len(t, s.GeneratedProjects, oracle.IdeaCount)
	for _, idea := range s.GeneratedProjects {
		assert.Equal(t, "## Field analysis", idea.Analysis)
		assert.NotEmpty(t, idea.LocalID)
		for _, score := range []int{idea.Impact, idea.Rigor, idea.Novelty, idea.WowFactor} {
			assert.GreaterOrEqual(t, score, 0)
			assert.LessOrEqual(t, score, 10)
		}
	}
	assert.Len(t, o.generateCalls, 2)
	assert.True(t, o.generateCalls[0].Grounded)
	assert.NotEmpty(t, o.generateCalls[1].Schema)
}

func TestIdeateKeepsAnalysisWhenIdeasFail(t *testing.T) {
	o := &fakeOracle{}
	o.generate = func(in oracle.GenerateRequest) (oracle.GenerateResponse, error) {
		if in.Grounded {
			return oracle.GenerateResponse{Text: "partial analysis"}, nil
		}
		return oracle.GenerateResponse{}, errors.New("model overloaded")
	}
	c, st := newHarness(t, o, newFakeProjects())
	signInGuestWith(st, 3)

	c.Ideate(context.Background(), "battery chemistry")

	s := st.Get()
	assert.Equal(t, "partial analysis", s.FieldAnalysis)
	assert.Empty(t, s.GeneratedProjects)
	assert.False(t, s.IsIdeating)
	assert.Contains(t, s.Error, "model overloaded")
	assert.Equal(t, 2, s.Tokens, "the spent token is not refunded")
}

func TestIdeateExhaustedStopsBeforeOracle(t *testing.T) {
	o := &fakeOracle{}
	c, st := newHarness(t, o, newFakeProjects())
	signInGuestWith(st, 0)

	c.Ideate(context.Background(), "rocketry")

	s := st.Get()
	assert.Empty(t, o.generateCalls)
	assert.False(t, s.IsIdeating)
	assert.NotEmpty(t, s.Error)
	assert.Equal(t, 0, s.Tokens)
}

func TestChatAppendsSyntheticMessageWhenExhausted(t *testing.T) {
	o := &fakeOracle{}
	c, st := newHarness(t, o, newFakeProjects())
	signInGuestWith(st, 0)

	c.ChatSend(context.Background(), "How do I control for temperature?", "")

	s := st.Get()
	require.Len(t, s.ChatHistory, 2)
	assert.Equal(t, research.RoleUser, s.ChatHistory[0].Role)
	assert.Equal(t, research.RoleModel, s.ChatHistory[1].Role)
	assert.Equal(t, meter.OutOfTokensMessage, s.ChatHistory[1].Content)
	assert.False(t, s.IsLoading)
	assert.Empty(t, s.Error, "the transcript is the only reporting channel")
	assert.Empty(t, o.chatCalls, "no oracle call without a token")
}

func TestChatConsumesSystemInstructionOnce(t *testing.T) {
	o := &fakeOracle{}
	o.chat = func(oracle.ChatRequest) (oracle.ChatResponse, error) {
		return oracle.ChatResponse{Text: "Good question."}, nil
	}
	c, st := newHarness(t, o, newFakeProjects())
	signInGuestWith(st, 5)
	st.Update(func(s *state.AppState) { s.SystemInstruction = "You are a coach." })

	c.ChatSend(context.Background(), "first", "data:image/png;base64,AA==")
	c.ChatSend(context.Background(), "second", "")

	require.Len(t, o.chatCalls, 2)
	assert.Equal(t, "You are a coach.", o.chatCalls[0].SystemInstruction)
	assert.Empty(t, o.chatCalls[1].SystemInstruction)
	assert.Equal(t, "data:image/png;base64,AA==", o.chatCalls[0].Messages[0].Image)
	for _, turn := range o.chatCalls[1].Messages[:len(o.chatCalls[1].Messages)-1] {
		assert.Empty(t, turn.Image, "history replays text only")
	}
}

func TestChatOracleFailureBecomesModelMessage(t *testing.T) {
	o := &fakeOracle{}
	o.chat = func(oracle.ChatRequest) (oracle.ChatResponse, error) {
		return oracle.ChatResponse{}, errors.New("deadline exceeded")
	}
	c, st := newHarness(t, o, newFakeProjects())
	signInGuestWith(st, 5)

	c.ChatSend(context.Background(), "hello", "")

	s := st.Get()
	require.Len(t, s.ChatHistory, 2)
	assert.Equal(t, research.RoleModel, s.ChatHistory[1].Role)
	assert.Contains(t, s.ChatHistory[1].Content, "deadline exceeded")
	assert.False(t, s.IsLoading)
}

func TestSelectIdeaPersistsForSignedInUser(t *testing.T) {
	o := &fakeOracle{}
	o.generate = func(oracle.GenerateRequest) (oracle.GenerateResponse, error) {
		return oracle.GenerateResponse{Text: "## Week 1"}, nil
	}
	projects := newFakeProjects()
	c, st := newHarness(t, o, projects)
	userID := uuid.New()
	st.Update(func(s *state.AppState) {
		s.AuthStatus = state.AuthSignedIn
		s.User = &state.Identity{Kind: state.IdentityUser, ID: userID, Email: "a@b.c"}
		s.Tokens = 2
		s.GeneratedProjects = []research.ProjectIdea{{LocalID: "tmp", Title: "Moss walls", Analysis: "ctx"}}
	})

	c.SelectIdea(context.Background(), 0)

	s := st.Get()
	assert.Equal(t, state.ViewProject, s.View)
	assert.Equal(t, state.SourceIdeation, s.ProjectSource)
	require.NotNil(t, s.SelectedProject)
	assert.True(t, s.SelectedProject.Saved())
	assert.Equal(t, "## Week 1", s.Timeline)
	assert.Equal(t, 1, s.Tokens)
	assert.Equal(t, 1, s.Stats.Projects)
	require.Len(t, s.RecentProjects, 1)
	assert.Equal(t, "Moss walls", s.RecentProjects[0].Title)
	assert.NotEmpty(t, s.SystemInstruction, "coach persona is primed for the first chat turn")
}

func TestSelectIdeaSaveFailureKeepsTokenSpent(t *testing.T) {
	o := &fakeOracle{}
	o.generate = func(oracle.GenerateRequest) (oracle.GenerateResponse, error) {
		return oracle.GenerateResponse{Text: "## Week 1"}, nil
	}
	projects := newFakeProjects()
	projects.saveErr = errors.New("connection refused")
	c, st := newHarness(t, o, projects)
	st.Update(func(s *state.AppState) {
		s.AuthStatus = state.AuthSignedIn
		s.User = &state.Identity{Kind: state.IdentityUser, ID: uuid.New()}
		s.Tokens = 2
		s.GeneratedProjects = []research.ProjectIdea{{LocalID: "tmp", Title: "Moss walls"}}
	})

	c.SelectIdea(context.Background(), 0)

	s := st.Get()
	assert.Equal(t, state.ViewResults, s.View)
	assert.Nil(t, s.SelectedProject)
	assert.Contains(t, s.Error, "connection refused")
	assert.Equal(t, 1, s.Tokens, "timeline token is not refunded")
}

func TestGuestSelectIdeaStaysInMemory(t *testing.T) {
	o := &fakeOracle{}
	o.generate = func(oracle.GenerateRequest) (oracle.GenerateResponse, error) {
		return oracle.GenerateResponse{Text: "plan"}, nil
	}
	projects := newFakeProjects()
	c, st := newHarness(t, o, projects)
	signInGuestWith(st, 5)
	st.Update(func(s *state.AppState) {
		s.GeneratedProjects = []research.ProjectIdea{{LocalID: "tmp", Title: "Kite power"}}
	})

	c.SelectIdea(context.Background(), 0)

	s := st.Get()
	assert.Empty(t, projects.byID, "guest work never reaches the store")
	assert.Equal(t, 1, s.Stats.Projects)
	require.Len(t, s.RecentProjects, 1)
	assert.False(t, s.RecentProjects[0].Saved())
}

func TestDeleteProjectUpdatesListsAndCount(t *testing.T) {
	o := &fakeOracle{}
	projects := newFakeProjects()
	c, st := newHarness(t, o, projects)
	userID := uuid.New()
	one, err := projects.Save(context.Background(), userID, research.ProjectIdea{Title: "one"})
	require.NoError(t, err)
	two, err := projects.Save(context.Background(), userID, research.ProjectIdea{Title: "two"})
	require.NoError(t, err)
	require.NoError(t, projects.ToggleFavorite(context.Background(), two.ID))
	st.Update(func(s *state.AppState) {
		s.AuthStatus = state.AuthSignedIn
		s.User = &state.Identity{Kind: state.IdentityUser, ID: userID}
	})
	c.RefreshDashboard(context.Background())
	require.Equal(t, 2, st.Get().Stats.Projects)

	c.DeleteProject(context.Background(), two)

	s := st.Get()
	assert.Equal(t, 1, s.Stats.Projects)
	assert.Equal(t, 0, s.Stats.Favorited)
	require.Len(t, s.RecentProjects, 1)
	assert.Equal(t, one.ID, s.RecentProjects[0].ID)
	assert.Empty(t, s.FavoritedProjects)
}

func TestGuestFavoriteAndDeleteMatchByDraftKey(t *testing.T) {
	o := &fakeOracle{}
	c, st := newHarness(t, o, newFakeProjects())
	signInGuestWith(st, 5)
	one := research.ProjectIdea{LocalID: research.NewLocalID(), Title: "one"}
	two := research.ProjectIdea{LocalID: research.NewLocalID(), Title: "two"}
	st.Update(func(s *state.AppState) {
		s.RecentProjects = []research.ProjectIdea{one, two}
		s.Stats.Projects = 2
	})

	c.ToggleFavorite(context.Background(), two)
	s := st.Get()
	assert.False(t, s.RecentProjects[0].IsFavorited)
	assert.True(t, s.RecentProjects[1].IsFavorited)
	assert.Equal(t, 1, s.Stats.Favorited)

	c.DeleteProject(context.Background(), one)
	s = st.Get()
	require.Len(t, s.RecentProjects, 1)
	assert.Equal(t, "two", s.RecentProjects[0].Title)
	assert.Equal(t, 1, s.Stats.Projects)
	assert.Equal(t, 1, s.Stats.Favorited)
}

func TestStaleFlowResultIsDiscarded(t *testing.T) {
	o := &fakeOracle{}
	c, st := newHarness(t, o, newFakeProjects())
	signInGuestWith(st, 5)

	blocked := make(chan struct{})
	release := make(chan struct{})
	o.generate = func(in oracle.GenerateRequest) (oracle.GenerateResponse, error) {
		if in.Grounded {
			close(blocked)
			<-release
			return oracle.GenerateResponse{Text: "late analysis"}, nil
		}
		return oracle.GenerateResponse{}, errors.New("should not run")
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.Ideate(context.Background(), "stale topic")
	}()
	<-blocked
	// The user navigates away while the flow is in flight.
	st.Advance()
	st.Update(func(s *state.AppState) { s.View = state.ViewDashboard })
	close(release)
	<-done

	s := st.Get()
	assert.Equal(t, state.ViewDashboard, s.View)
	assert.Empty(t, s.FieldAnalysis, "late merge lands in a discarded epoch")
}

func TestLateChatReplyDropsAfterPersonaSwitch(t *testing.T) {
	o := &fakeOracle{}
	c, st := newHarness(t, o, newFakeProjects())
	signInGuestWith(st, 5)
	st.Update(func(s *state.AppState) {
		s.View = state.ViewTools
		s.ActiveTool = state.ToolJudge
		s.SystemInstruction = oracle.JudgeSystemInstruction
	})

	blocked := make(chan struct{})
	release := make(chan struct{})
	o.chat = func(oracle.ChatRequest) (oracle.ChatResponse, error) {
		close(blocked)
		<-release
		return oracle.ChatResponse{Text: "JUDGE VERDICT"}, nil
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.ChatSend(context.Background(), "rate my project", "")
	}()
	<-blocked
	// The user switches to another tool while the judge is still replying.
	st.Advance()
	st.Update(func(s *state.AppState) {
		s.ActiveTool = state.ToolAbstract
		s.ChatHistory = nil
		s.SystemInstruction = ""
		s.IsLoading = false
	})
	close(release)
	<-done

	s := st.Get()
	assert.Empty(t, s.ChatHistory, "late judge reply must not bleed into the next tool's transcript")
	assert.False(t, s.IsLoading)
}

func TestBackfillIsSilent(t *testing.T) {
	o := &fakeOracle{}
	o.generate = func(oracle.GenerateRequest) (oracle.GenerateResponse, error) {
		return oracle.GenerateResponse{Text: "recovered timeline"}, nil
	}
	projects := newFakeProjects()
	c, st := newHarness(t, o, projects)
	userID := uuid.New()
	saved, err := projects.Save(context.Background(), userID, research.ProjectIdea{Title: "orphan"})
	require.NoError(t, err)
	st.Update(func(s *state.AppState) {
		s.AuthStatus = state.AuthSignedIn
		s.User = &state.Identity{Kind: state.IdentityUser, ID: userID}
		s.Tokens = 3
		s.SelectedProject = &saved
		s.RecentProjects = []research.ProjectIdea{saved}
	})

	c.Backfill(context.Background(), saved)

	s := st.Get()
	assert.Equal(t, "recovered timeline", s.Timeline)
	assert.Equal(t, "recovered timeline", s.SelectedProject.Timeline)
	assert.Equal(t, "recovered timeline", s.RecentProjects[0].Timeline)
	assert.Equal(t, "recovered timeline", projects.byID[saved.ID].Timeline)
	assert.Equal(t, 2, s.Tokens)
	assert.Empty(t, s.Error)
}

func TestBackfillExhaustedAbortsQuietly(t *testing.T) {
	o := &fakeOracle{}
	projects := newFakeProjects()
	c, st := newHarness(t, o, projects)
	userID := uuid.New()
	saved, err := projects.Save(context.Background(), userID, research.ProjectIdea{Title: "orphan"})
	require.NoError(t, err)
	st.Update(func(s *state.AppState) {
		s.AuthStatus = state.AuthSignedIn
		s.User = &state.Identity{Kind: state.IdentityUser, ID: userID}
		s.Tokens = 0
	})

	c.Backfill(context.Background(), saved)

	s := st.Get()
	assert.Empty(t, o.generateCalls)
	assert.Empty(t, s.Error)
	assert.False(t, s.UpgradePrompt)
}

func TestRunToolReplacesOutputOnFailure(t *testing.T) {
	o := &fakeOracle{}
	o.generate = func(oracle.GenerateRequest) (oracle.GenerateResponse, error) {
		return oracle.GenerateResponse{}, errors.New("blocked by safety filter")
	}
	c, st := newHarness(t, o, newFakeProjects())
	signInGuestWith(st, 5)

	c.RunTool(context.Background(), state.ToolFeedback, "My hypothesis is...")

	s := st.Get()
	assert.False(t, s.IsToolLoading)
	assert.Contains(t, s.ToolOutput, "blocked by safety filter")
	assert.Equal(t, 4, s.Tokens)
}

func TestRunToolAbstract(t *testing.T) {
	o := &fakeOracle{}
	o.generate = func(in oracle.GenerateRequest) (oracle.GenerateResponse, error) {
		require.True(t, strings.Contains(in.Prompt, "My project measures"), "tool input reaches the prompt")
		return oracle.GenerateResponse{Text: "A 250-word abstract."}, nil
	}
	c, st := newHarness(t, o, newFakeProjects())
	signInGuestWith(st, 5)

	c.RunTool(context.Background(), state.ToolAbstract, "My project measures soil pH.")

	s := st.Get()
	assert.Equal(t, "A 250-word abstract.", s.ToolOutput)
	assert.False(t, s.IsToolLoading)
}

func TestSignOutResetsEverything(t *testing.T) {
	o := &fakeOracle{}
	c, st := newHarness(t, o, newFakeProjects())
	signInGuestWith(st, 5)
	st.Update(func(s *state.AppState) {
		s.Topic = "stale"
		s.ChatHistory = []research.ChatMessage{{Role: research.RoleUser, Content: "hi"}}
	})

	c.SignOut()

	s := st.Get()
	assert.Equal(t, state.AuthSignedOut, s.AuthStatus)
	assert.Nil(t, s.User)
	assert.Empty(t, s.Topic)
	assert.Empty(t, s.ChatHistory)
	assert.Equal(t, 0, s.Tokens)
}
