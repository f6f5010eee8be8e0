// Package session sequences the multi-call flows that outlive a single
// render cycle: ideation, project selection and save, coaching chat, and
// timeline backfill. Flows run off the UI loop, merge their results
// through the state store, and stamp every merge with the epoch captured at
// start so a result landing after navigation is discarded.
package session

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/firi-app/firi/internal/cache"
	"github.com/firi-app/firi/internal/meter"
	"github.com/firi-app/firi/internal/oracle"
	"github.com/firi-app/firi/internal/research"
	"github.com/firi-app/firi/internal/state"
	"github.com/firi-app/firi/internal/store"
)

const dashboardLimit = 20

// Oracle is the generation surface the flows need.
type Oracle interface {
	Generate(ctx context.Context, in oracle.GenerateRequest) (oracle.GenerateResponse, error)
	Chat(ctx context.Context, in oracle.ChatRequest) (oracle.ChatResponse, error)
}

// Projects is the per-user saved-idea collection.
type Projects interface {
	Save(ctx context.Context, userID uuid.UUID, idea research.ProjectIdea) (research.ProjectIdea, error)
	List(ctx context.Context, userID uuid.UUID, limit int) ([]research.ProjectIdea, error)
	Favorites(ctx context.Context, userID uuid.UUID) ([]research.ProjectIdea, error)
	Counts(ctx context.Context, userID uuid.UUID) (int, int, error)
	ToggleFavorite(ctx context.Context, id uuid.UUID) error
	Delete(ctx context.Context, id uuid.UUID) error
	SetTimeline(ctx context.Context, id uuid.UUID, timeline string) error
}

// Accounts is the per-user profile document.
type Accounts interface {
	GetOrCreate(ctx context.Context, email, displayName string, seedTokens int) (store.UserRecord, error)
	SetPlan(ctx context.Context, id uuid.UUID, plan string) error
}

// Tokens is the metering surface.
type Tokens interface {
	Consume(ctx context.Context) error
	ConsumeSilent(ctx context.Context) error
	Upgrade(ctx context.Context) error
}

// Controller owns the flows. All methods are safe to run in their own
// goroutine; state merges are serialized by the store.
type Controller struct {
	state    *state.Store
	oracle   Oracle
	projects Projects
	accounts Accounts
	meter    Tokens
	queries  *cache.RecentQueries
}

func NewController(st *state.Store, o Oracle, p Projects, a Accounts, t Tokens, q *cache.RecentQueries) *Controller {
	return &Controller{state: st, oracle: o, projects: p, accounts: a, meter: t, queries: q}
}

// SignIn resolves the identity and loads the dashboard. Failures stay on
// the login surface as an inline, retryable error.
func (c *Controller) SignIn(ctx context.Context, email, displayName string) {
	c.state.Update(func(s *state.AppState) {
		s.AuthStatus = state.AuthLoading
		s.Error = ""
	})
	rec, err := c.accounts.GetOrCreate(ctx, email, displayName, meter.SignupTokens)
	if err != nil {
		c.state.Update(func(s *state.AppState) {
			s.AuthStatus = state.AuthSignedOut
			s.Error = "Sign-in failed: " + err.Error()
		})
		return
	}
	id := rec.Identity()
	c.state.Update(func(s *state.AppState) {
		s.AuthStatus = state.AuthSignedIn
		s.User = &id
		s.Tokens = rec.Tokens
		s.View = state.ViewDashboard
		s.RecentQueries = c.queries.Load()
	})
	c.refreshDashboardAt(ctx, c.state.Epoch())
}

// SignInGuest starts a non-persisted trial session with the fixed starting
// balance.
func (c *Controller) SignInGuest() {
	c.state.Update(func(s *state.AppState) {
		s.AuthStatus = state.AuthSignedIn
		s.User = &state.Identity{Kind: state.IdentityGuest, DisplayName: "Guest"}
		s.Tokens = meter.GuestTokens
		s.View = state.ViewDashboard
		s.RecentQueries = c.queries.Load()
		s.Error = ""
	})
}

// SignOut abandons any in-flight flows and resets to a fresh signed-out
// snapshot.
func (c *Controller) SignOut() {
	c.state.Advance()
	c.state.Update(func(s *state.AppState) {
		*s = state.AppState{AuthStatus: state.AuthSignedOut, View: state.ViewDashboard}
	})
}

// Ideate runs the ideation flow: record the query, generate a grounded
// field analysis, then a schema-bound idea list. One token covers the whole
// flow. Step failures leave GeneratedProjects empty; an already-computed
// analysis stays visible.
func (c *Controller) Ideate(ctx context.Context, topic string) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return
	}
	epoch := c.state.Epoch()
	list, _ := c.queries.Record(topic, time.Now())
	c.state.Update(func(s *state.AppState) {
		s.Topic = topic
		s.RecentQueries = list
		s.View = state.ViewResults
		s.IsIdeating = true
		s.Error = ""
		s.FieldAnalysis = ""
		s.Sources = nil
		s.GeneratedProjects = nil
	})
	if err := c.meter.Consume(ctx); err != nil {
		c.state.UpdateAt(epoch, func(s *state.AppState) { s.IsIdeating = false })
		return
	}
	analysis, err := c.oracle.Generate(ctx, oracle.GenerateRequest{
		Prompt:   oracle.FieldAnalysisPrompt(topic),
		Grounded: true,
	})
	if err != nil {
		c.state.UpdateAt(epoch, func(s *state.AppState) {
			s.IsIdeating = false
			s.Error = "Field analysis failed: " + err.Error()
		})
		return
	}
	sources := research.DedupSources(analysis.Sources)
	live := c.state.UpdateAt(epoch, func(s *state.AppState) {
		s.FieldAnalysis = analysis.Text
		s.Sources = sources
	})
	if !live {
		return
	}
	raw, err := c.oracle.Generate(ctx, oracle.GenerateRequest{
		Prompt: oracle.IdeaListPrompt(topic, analysis.Text),
		Schema: oracle.IdeaListSchema(),
	})
	if err != nil {
		c.state.UpdateAt(epoch, func(s *state.AppState) {
			s.IsIdeating = false
			s.Error = "Idea generation failed: " + err.Error()
		})
		return
	}
	ideas, err := oracle.ParseIdeas(raw.Text, analysis.Text)
	if err != nil {
		c.state.UpdateAt(epoch, func(s *state.AppState) {
			s.IsIdeating = false
			s.Error = "Idea generation returned an unusable response: " + err.Error()
		})
		return
	}
	c.state.UpdateAt(epoch, func(s *state.AppState) {
		s.GeneratedProjects = ideas
		s.IsIdeating = false
	})
}

// SelectIdea develops one generated idea: a timeline (one token), then, for
// signed-in sessions, persistence plus a dashboard refetch. Guests stay
// in-memory. Timeline failure aborts back to results; persistence failure
// also returns to results with the timeline token already spent.
func (c *Controller) SelectIdea(ctx context.Context, index int) {
	snap := c.state.Get()
	if index < 0 || index >= len(snap.GeneratedProjects) {
		return
	}
	idea := snap.GeneratedProjects[index]
	epoch := c.state.Epoch()
	c.state.Update(func(s *state.AppState) {
		s.View = state.ViewProject
		s.ProjectSource = state.SourceIdeation
		s.SelectedProject = &idea
		s.IsLoading = true
		s.Error = ""
		s.Timeline = ""
		s.ChatHistory = nil
		s.PanelLayout = nil
		s.JudgeImage = ""
		s.SystemInstruction = oracle.CoachSystemInstruction(idea)
	})
	if err := c.meter.Consume(ctx); err != nil {
		c.state.UpdateAt(epoch, func(s *state.AppState) {
			s.View = state.ViewResults
			s.IsLoading = false
			s.SelectedProject = nil
		})
		return
	}
	tl, err := c.oracle.Generate(ctx, oracle.GenerateRequest{Prompt: oracle.TimelinePrompt(idea)})
	if err != nil {
		c.state.UpdateAt(epoch, func(s *state.AppState) {
			s.View = state.ViewResults
			s.IsLoading = false
			s.SelectedProject = nil
			s.Error = "Timeline generation failed: " + err.Error()
		})
		return
	}
	idea.Timeline = tl.Text

	if snap.User != nil && !snap.User.Guest() {
		saved, err := c.projects.Save(ctx, snap.User.ID, idea)
		if err != nil {
			c.state.UpdateAt(epoch, func(s *state.AppState) {
				s.View = state.ViewResults
				s.IsLoading = false
				s.SelectedProject = nil
				s.Error = "Could not save the project: " + err.Error()
			})
			return
		}
		idea = saved
		c.refreshDashboardAt(ctx, epoch)
	} else {
		c.state.UpdateAt(epoch, func(s *state.AppState) {
			s.RecentProjects = append([]research.ProjectIdea{idea}, s.RecentProjects...)
			s.Stats.Projects++
		})
	}
	c.state.UpdateAt(epoch, func(s *state.AppState) {
		s.SelectedProject = &idea
		s.Timeline = idea.Timeline
		s.IsLoading = false
	})
}

// OpenProject enters the workspace for a saved project from the dashboard.
// A missing stored timeline is backfilled silently in the background.
func (c *Controller) OpenProject(ctx context.Context, idea research.ProjectIdea) {
	c.state.Update(func(s *state.AppState) {
		s.View = state.ViewProject
		s.ProjectSource = state.SourceDashboard
		s.SelectedProject = &idea
		s.Timeline = idea.Timeline
		s.ChatHistory = nil
		s.PanelLayout = nil
		s.JudgeImage = ""
		s.SystemInstruction = oracle.CoachSystemInstruction(idea)
		s.Error = ""
	})
	if idea.Saved() && idea.Timeline == "" {
		go c.Backfill(ctx, idea)
	}
}

// Backfill regenerates and persists a missing timeline without surfacing
// progress or failure. Token exhaustion aborts quietly.
func (c *Controller) Backfill(ctx context.Context, idea research.ProjectIdea) {
	epoch := c.state.Epoch()
	if err := c.meter.ConsumeSilent(ctx); err != nil {
		return
	}
	tl, err := c.oracle.Generate(ctx, oracle.GenerateRequest{Prompt: oracle.TimelinePrompt(idea)})
	if err != nil {
		return
	}
	if err := c.projects.SetTimeline(ctx, idea.ID, tl.Text); err != nil {
		return
	}
	c.state.UpdateAt(epoch, func(s *state.AppState) {
		if s.SelectedProject != nil && s.SelectedProject.ID == idea.ID {
			p := *s.SelectedProject
			p.Timeline = tl.Text
			s.SelectedProject = &p
			s.Timeline = tl.Text
		}
		s.RecentProjects = withTimeline(s.RecentProjects, idea.ID, tl.Text)
		s.FavoritedProjects = withTimeline(s.FavoritedProjects, idea.ID, tl.Text)
	})
}

// ChatSend appends the user's turn optimistically, consumes one token, and
// sends the full history. Exhaustion and oracle failures come back as a
// synthetic model message; the transcript is the single reporting channel.
// The one-shot system instruction rides on the first send only.
func (c *Controller) ChatSend(ctx context.Context, text, image string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	epoch := c.state.Epoch()
	var sys string
	var history []research.ChatMessage
	c.state.Update(func(s *state.AppState) {
		turn := research.ChatMessage{Role: research.RoleUser, Content: text, Image: image}
		s.ChatHistory = append(cloneHistory(s.ChatHistory), turn)
		history = s.ChatHistory
		s.IsLoading = true
		sys = s.SystemInstruction
		s.SystemInstruction = ""
		s.JudgeImage = ""
	})
	if err := c.meter.ConsumeSilent(ctx); err != nil {
		c.state.UpdateAt(epoch, func(s *state.AppState) {
			s.ChatHistory = append(cloneHistory(s.ChatHistory),
				research.ChatMessage{Role: research.RoleModel, Content: meter.OutOfTokensMessage})
			s.IsLoading = false
		})
		return
	}
	req := oracle.ChatRequest{SystemInstruction: sys}
	for i, m := range history {
		turn := oracle.ChatTurn{Role: m.Role, Content: m.Content}
		// Stored images are display-only; only the newest turn carries one.
		if i == len(history)-1 {
			turn.Image = m.Image
		}
		req.Messages = append(req.Messages, turn)
	}
	resp, err := c.oracle.Chat(ctx, req)
	reply := resp.Text
	if err != nil {
		reply = "I couldn't generate a reply: " + err.Error() + ". Please try again."
	}
	c.state.UpdateAt(epoch, func(s *state.AppState) {
		s.ChatHistory = append(cloneHistory(s.ChatHistory),
			research.ChatMessage{Role: research.RoleModel, Content: reply})
		s.IsLoading = false
	})
}

// RunTool runs a one-shot AI tool (abstract or feedback). The judge tool is
// a chat persona and goes through ChatSend instead. Failures replace the
// tool output with a visible message.
func (c *Controller) RunTool(ctx context.Context, tool, input string) {
	input = strings.TrimSpace(input)
	if input == "" {
		return
	}
	var prompt string
	switch tool {
	case state.ToolAbstract:
		prompt = oracle.AbstractPrompt(input)
	case state.ToolFeedback:
		prompt = oracle.FeedbackPrompt(input)
	default:
		return
	}
	epoch := c.state.Epoch()
	c.state.Update(func(s *state.AppState) {
		s.IsToolLoading = true
		s.ToolInput = input
		s.ToolOutput = ""
	})
	if err := c.meter.Consume(ctx); err != nil {
		c.state.UpdateAt(epoch, func(s *state.AppState) { s.IsToolLoading = false })
		return
	}
	resp, err := c.oracle.Generate(ctx, oracle.GenerateRequest{Prompt: prompt})
	out := resp.Text
	if err != nil {
		out = "The tool ran into a problem: " + err.Error()
	}
	c.state.UpdateAt(epoch, func(s *state.AppState) {
		s.ToolOutput = out
		s.IsToolLoading = false
	})
}

// ToggleFavorite flips the favorite flag on a project. Guest projects are
// flipped in memory; saved ones go through the store and a refetch.
func (c *Controller) ToggleFavorite(ctx context.Context, idea research.ProjectIdea) {
	snap := c.state.Get()
	if snap.User != nil && !snap.User.Guest() && idea.Saved() {
		if err := c.projects.ToggleFavorite(ctx, idea.ID); err != nil {
			c.state.Update(func(s *state.AppState) { s.Error = "Could not update favorite: " + err.Error() })
			return
		}
		c.refreshDashboardAt(ctx, c.state.Epoch())
		return
	}
	key := idea.Key()
	c.state.Update(func(s *state.AppState) {
		s.RecentProjects = flipFavorite(s.RecentProjects, key)
		s.FavoritedProjects = favoritesOf(s.RecentProjects)
		s.Stats.Favorited = len(s.FavoritedProjects)
		if s.SelectedProject != nil && s.SelectedProject.Key() == key {
			p := *s.SelectedProject
			p.IsFavorited = !p.IsFavorited
			s.SelectedProject = &p
		}
	})
}

// DeleteProject removes a project from the store and from both list views;
// the displayed count shrinks by exactly one.
func (c *Controller) DeleteProject(ctx context.Context, idea research.ProjectIdea) {
	snap := c.state.Get()
	key := idea.Key()
	if snap.User != nil && !snap.User.Guest() && idea.Saved() {
		if err := c.projects.Delete(ctx, idea.ID); err != nil {
			c.state.Update(func(s *state.AppState) { s.Error = "Could not delete the project: " + err.Error() })
			return
		}
		c.state.Update(func(s *state.AppState) { dropSelection(s, key) })
		c.refreshDashboardAt(ctx, c.state.Epoch())
		return
	}
	c.state.Update(func(s *state.AppState) {
		s.RecentProjects = removeProject(s.RecentProjects, key)
		s.FavoritedProjects = removeProject(s.FavoritedProjects, key)
		s.Stats.Projects--
		s.Stats.Favorited = len(s.FavoritedProjects)
		dropSelection(s, key)
	})
}

// Upgrade runs the simulated membership purchase.
func (c *Controller) Upgrade(ctx context.Context) {
	snap := c.state.Get()
	if err := c.meter.Upgrade(ctx); err != nil {
		c.state.Update(func(s *state.AppState) { s.Error = "Upgrade failed: " + err.Error() })
		return
	}
	if snap.User != nil && !snap.User.Guest() {
		if err := c.accounts.SetPlan(ctx, snap.User.ID, "pro"); err != nil {
			c.state.Update(func(s *state.AppState) { s.Error = "Upgrade saved tokens but not the plan: " + err.Error() })
		}
	}
}

// RefreshDashboard refetches lists and counts for the current epoch.
func (c *Controller) RefreshDashboard(ctx context.Context) {
	c.refreshDashboardAt(ctx, c.state.Epoch())
}

func (c *Controller) refreshDashboardAt(ctx context.Context, epoch uint64) {
	snap := c.state.Get()
	if snap.User == nil || snap.User.Guest() {
		return
	}
	recent, err := c.projects.List(ctx, snap.User.ID, dashboardLimit)
	if err != nil {
		c.state.UpdateAt(epoch, func(s *state.AppState) { s.Error = "Could not load projects: " + err.Error() })
		return
	}
	favs, err := c.projects.Favorites(ctx, snap.User.ID)
	if err != nil {
		c.state.UpdateAt(epoch, func(s *state.AppState) { s.Error = "Could not load favorites: " + err.Error() })
		return
	}
	total, favorited, err := c.projects.Counts(ctx, snap.User.ID)
	if err != nil {
		c.state.UpdateAt(epoch, func(s *state.AppState) { s.Error = "Could not load project counts: " + err.Error() })
		return
	}
	c.state.UpdateAt(epoch, func(s *state.AppState) {
		s.RecentProjects = recent
		s.FavoritedProjects = favs
		s.Stats = state.DashboardStats{Projects: total, Favorited: favorited}
	})
}

func cloneHistory(in []research.ChatMessage) []research.ChatMessage {
	out := make([]research.ChatMessage, len(in))
	copy(out, in)
	return out
}

func withTimeline(in []research.ProjectIdea, id uuid.UUID, timeline string) []research.ProjectIdea {
	out := make([]research.ProjectIdea, len(in))
	copy(out, in)
	for i := range out {
		if out[i].ID == id {
			out[i].Timeline = timeline
		}
	}
	return out
}

func removeProject(in []research.ProjectIdea, key string) []research.ProjectIdea {
	out := make([]research.ProjectIdea, 0, len(in))
	for _, p := range in {
		if p.Key() != key {
			out = append(out, p)
		}
	}
	return out
}

func flipFavorite(in []research.ProjectIdea, key string) []research.ProjectIdea {
	out := make([]research.ProjectIdea, len(in))
	copy(out, in)
	for i := range out {
		if out[i].Key() == key {
			out[i].IsFavorited = !out[i].IsFavorited
		}
	}
	return out
}

func favoritesOf(in []research.ProjectIdea) []research.ProjectIdea {
	out := make([]research.ProjectIdea, 0)
	for _, p := range in {
		if p.IsFavorited {
			out = append(out, p)
		}
	}
	return out
}

func dropSelection(s *state.AppState, key string) {
	if s.SelectedProject != nil && s.SelectedProject.Key() == key {
		s.SelectedProject = nil
		s.Timeline = ""
		s.ChatHistory = nil
		s.View = state.ViewDashboard
	}
}
