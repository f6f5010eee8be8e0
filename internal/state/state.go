package state

import (
	"sync"

	"github.com/google/uuid"

	"github.com/firi-app/firi/internal/research"
)

// Auth lifecycle.
const (
	AuthInitializing = "initializing"
	AuthLoading      = "loading"
	AuthSignedIn     = "signed_in"
	AuthSignedOut    = "signed_out"
)

// Main content views.
const (
	ViewDashboard  = "dashboard"
	ViewGuides     = "guides"
	ViewTools      = "tools"
	ViewResults    = "results"
	ViewProject    = "project"
	ViewMembership = "membership"
)

// How the workspace was entered; decides the back-navigation target.
const (
	SourceDashboard = "dashboard"
	SourceIdeation  = "ideation"
)

// AI tools.
const (
	ToolAbstract = "abstract"
	ToolFeedback = "feedback"
	ToolJudge    = "judge"
)

// Identity kinds. Guest sessions are a tagged variant, not a fake
// authenticated record.
const (
	IdentityUser  = "user"
	IdentityGuest = "guest"
)

type Identity struct {
	Kind        string
	ID          uuid.UUID
	Email       string
	DisplayName string
	Plan        string
}

func (i Identity) Guest() bool { return i.Kind == IdentityGuest }

// DashboardStats summarizes the saved-project collection.
type DashboardStats struct {
	Projects  int
	Favorited int
}

// PanelLayout is the workspace split-pane geometry. Ratio is the share of
// width given to the left (scorecard) pane.
type PanelLayout struct {
	Ratio float64
}

// AppState is the single process-wide snapshot of all UI-relevant data.
// Only the Store mutates it; everything else reads a copy.
type AppState struct {
	AuthStatus string
	User       *Identity
	FatalError string

	View string

	// Independent busy flags for overlapping async flows.
	IsLoading     bool
	IsIdeating    bool
	IsToolLoading bool

	// Error is a displayable message; it may carry markdown.
	Error         string
	UpgradePrompt bool

	Tokens int
	Stats  DashboardStats

	RecentProjects    []research.ProjectIdea
	FavoritedProjects []research.ProjectIdea
	RecentQueries     []research.RecentQuery

	// Ideation-flow scratch space.
	Topic             string
	FieldAnalysis     string
	GeneratedProjects []research.ProjectIdea
	Sources           []research.Source

	SelectedProject *research.ProjectIdea
	ProjectSource   string
	Timeline        string
	ChatHistory     []research.ChatMessage
	PanelLayout     *PanelLayout

	// AI-tools scratch space.
	ActiveTool string
	ToolInput  string
	ToolOutput string
	JudgeImage string

	// One-shot priming text consumed on the first chat send.
	SystemInstruction string
}

// Guest reports whether the current session is a guest session.
func (s AppState) Guest() bool { return s.User != nil && s.User.Guest() }

// TranscriptChanged reports whether a transcript view should scroll to its
// end given an old and a new snapshot.
func TranscriptChanged(old, next AppState) bool {
	return len(old.ChatHistory) != len(next.ChatHistory) || old.IsLoading != next.IsLoading
}

// Store owns the AppState. Updates are serialized; each one replaces the
// snapshot wholesale and notifies the observer with the old and new values.
// Flows capture the epoch when they start and merge through UpdateAt so a
// result that resolves after the user navigated away is discarded instead of
// clobbering newer state.
type Store struct {
	mu       sync.Mutex
	state    AppState
	epoch    uint64
	onChange func(old, next AppState)
}

func NewStore(initial AppState) *Store {
	return &Store{state: initial}
}

// OnChange registers the single observer. The callback runs after the swap,
// outside the store lock, with value copies of both snapshots.
func (st *Store) OnChange(fn func(old, next AppState)) {
	st.mu.Lock()
	st.onChange = fn
	st.mu.Unlock()
}

// Get returns the current snapshot. Callers must treat slices and pointers
// inside it as read-only.
func (st *Store) Get() AppState {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.state
}

// Update applies fn to a copy of the current snapshot and swaps it in.
// Fields fn does not touch keep their previous value.
func (st *Store) Update(fn func(*AppState)) {
	st.mu.Lock()
	old := st.state
	next := old
	fn(&next)
	st.state = next
	notify := st.onChange
	st.mu.Unlock()
	if notify != nil {
		notify(old, next)
	}
}

// Epoch returns the current navigation epoch.
func (st *Store) Epoch() uint64 {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.epoch
}

// Advance bumps the epoch. Called on navigation so in-flight flows started
// under the previous epoch discard their results.
func (st *Store) Advance() uint64 {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.epoch++
	return st.epoch
}

// UpdateAt applies fn only if the epoch still matches the one the flow
// captured at start. Returns false when the merge was discarded as stale.
func (st *Store) UpdateAt(epoch uint64, fn func(*AppState)) bool {
	st.mu.Lock()
	if st.epoch != epoch {
		st.mu.Unlock()
		return false
	}
	old := st.state
	next := old
	fn(&next)
	st.state = next
	notify := st.onChange
	st.mu.Unlock()
	if notify != nil {
		notify(old, next)
	}
	return true
}
