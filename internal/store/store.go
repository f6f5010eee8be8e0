package store

import (
	"context"
	"database/sql"
	errs "errors"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/firi-app/firi/internal/research"
	"github.com/firi-app/firi/internal/state"
)

var ErrNoChange = errs.New("no change")

// DB wraps gorm.DB for repositories and exposes Close.
type DB struct {
	gorm *gorm.DB
	sql  *sql.DB
}

func (d *DB) Close() error   { return d.sql.Close() }
func (d *DB) Gorm() *gorm.DB { return d.gorm }

// Open connects to the database.
func Open(ctx context.Context, dsn string) (*DB, error) {
	if dsn == "" {
		return nil, errors.New("missing DSN")
	}
	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	sdb, err := gdb.DB()
	if err != nil {
		return nil, err
	}
	sdb.SetConnMaxLifetime(30 * time.Minute)
	sdb.SetMaxOpenConns(10)
	sdb.SetMaxIdleConns(5)
	if err := sdb.PingContext(ctx); err != nil {
		return nil, err
	}
	return &DB{gorm: gdb, sql: sdb}, nil
}

// WithTx executes fn within a database transaction.
func (d *DB) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return d.gorm.WithContext(ctx).Transaction(fn)
}

// UserRecord is the per-user document: profile fields plus the token
// balance the meter persists against.
type UserRecord struct {
	ID          uuid.UUID
	Email       string
	DisplayName string
	Tokens      int
	Plan        string
	CreatedAt   time.Time
}

// Identity converts the record into the session identity.
func (u UserRecord) Identity() state.Identity {
	return state.Identity{
		Kind:        state.IdentityUser,
		ID:          u.ID,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		Plan:        u.Plan,
	}
}

type UserRepo struct{ db *DB }

func NewUserRepo(db *DB) *UserRepo { return &UserRepo{db: db} }

// GetOrCreate looks a user up by email, creating the account with the
// starting token balance on first sign-in.
func (r *UserRepo) GetOrCreate(ctx context.Context, email, displayName string, seedTokens int) (UserRecord, error) {
	var u UserRecord
	row := r.db.gorm.WithContext(ctx).Raw(
		`SELECT id, email, display_name, tokens, plan, created_at FROM users WHERE email = ?`, email).Row()
	err := row.Scan(&u.ID, &u.Email, &u.DisplayName, &u.Tokens, &u.Plan, &u.CreatedAt)
	if err == nil {
		return u, nil
	}
	if !errs.Is(err, sql.ErrNoRows) {
		return UserRecord{}, errors.Wrap(err, "load user")
	}
	u = UserRecord{
		ID:          uuid.New(),
		Email:       email,
		DisplayName: displayName,
		Tokens:      seedTokens,
		Plan:        "free",
		CreatedAt:   time.Now().UTC(),
	}
	if err := r.db.gorm.WithContext(ctx).Exec(
		`INSERT INTO users(id, email, display_name, tokens, plan, created_at) VALUES (?,?,?,?,?,?)`,
		u.ID, u.Email, u.DisplayName, u.Tokens, u.Plan, u.CreatedAt).Error; err != nil {
		return UserRecord{}, errors.Wrap(err, "create user")
	}
	return u, nil
}

// SetTokens persists a new balance. Used by the meter for the optimistic
// decrement and by the upgrade path.
func (r *UserRepo) SetTokens(ctx context.Context, id uuid.UUID, tokens int) error {
	return errors.Wrap(
		r.db.gorm.WithContext(ctx).Exec(`UPDATE users SET tokens = ? WHERE id = ?`, tokens, id).Error,
		"persist token balance")
}

// SetPlan records a membership change.
func (r *UserRepo) SetPlan(ctx context.Context, id uuid.UUID, plan string) error {
	return errors.Wrap(
		r.db.gorm.WithContext(ctx).Exec(`UPDATE users SET plan = ? WHERE id = ?`, plan, id).Error,
		"persist plan")
}

// ProjectRepo is the per-user collection of saved project ideas.
type ProjectRepo struct{ db *DB }

func NewProjectRepo(db *DB) *ProjectRepo { return &ProjectRepo{db: db} }

// Save promotes a transient idea to persistent: assigns the ID, stamps
// created_at, clears favorited. Analysis, resources and timeline are stored
// as the exact strings given.
func (r *ProjectRepo) Save(ctx context.Context, userID uuid.UUID, idea research.ProjectIdea) (research.ProjectIdea, error) {
	idea.ID = uuid.New()
	idea.CreatedAt = time.Now().UTC()
	idea.IsFavorited = false
	err := r.db.gorm.WithContext(ctx).Exec(
		`INSERT INTO projects(id, user_id, title, description, analysis, category,
			impact, rigor, novelty, wow_factor, resources_html, timeline, is_favorited, created_at)
		 VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		idea.ID, userID, idea.Title, idea.Description, idea.Analysis, idea.Category,
		idea.Impact, idea.Rigor, idea.Novelty, idea.WowFactor,
		idea.ResourcesHTML, idea.Timeline, idea.IsFavorited, idea.CreatedAt).Error
	if err != nil {
		return research.ProjectIdea{}, errors.Wrap(err, "save project")
	}
	idea.LocalID = ""
	return idea, nil
}

const projectColumns = `id, title, description, analysis, category, impact, rigor, novelty, wow_factor, resources_html, COALESCE(timeline, ''), is_favorited, created_at`

func scanProjects(rows *sql.Rows) ([]research.ProjectIdea, error) {
	var out []research.ProjectIdea
	for rows.Next() {
		var p research.ProjectIdea
		if err := rows.Scan(&p.ID, &p.Title, &p.Description, &p.Analysis, &p.Category,
			&p.Impact, &p.Rigor, &p.Novelty, &p.WowFactor,
			&p.ResourcesHTML, &p.Timeline, &p.IsFavorited, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// List returns saved projects most-recent-first.
func (r *ProjectRepo) List(ctx context.Context, userID uuid.UUID, limit int) ([]research.ProjectIdea, error) {
	rows, err := r.db.gorm.WithContext(ctx).Raw(
		`SELECT `+projectColumns+` FROM projects WHERE user_id = ? ORDER BY created_at DESC LIMIT ?`,
		userID, limit).Rows()
	if err != nil {
		return nil, errors.Wrap(err, "list projects")
	}
	defer rows.Close()
	return scanProjects(rows)
}

// Favorites returns favorited projects most-recent-first.
func (r *ProjectRepo) Favorites(ctx context.Context, userID uuid.UUID) ([]research.ProjectIdea, error) {
	rows, err := r.db.gorm.WithContext(ctx).Raw(
		`SELECT `+projectColumns+` FROM projects WHERE user_id = ? AND is_favorited ORDER BY created_at DESC`,
		userID).Rows()
	if err != nil {
		return nil, errors.Wrap(err, "list favorites")
	}
	defer rows.Close()
	return scanProjects(rows)
}

// Counts returns the dashboard totals.
func (r *ProjectRepo) Counts(ctx context.Context, userID uuid.UUID) (int, int, error) {
	row := r.db.gorm.WithContext(ctx).Raw(
		`SELECT COUNT(*), COUNT(*) FILTER (WHERE is_favorited) FROM projects WHERE user_id = ?`,
		userID).Row()
	var total, favorited int
	if err := row.Scan(&total, &favorited); err != nil {
		return 0, 0, errors.Wrap(err, "count projects")
	}
	return total, favorited, nil
}

// ToggleFavorite flips the favorite flag.
func (r *ProjectRepo) ToggleFavorite(ctx context.Context, id uuid.UUID) error {
	return errors.Wrap(
		r.db.gorm.WithContext(ctx).Exec(`UPDATE projects SET is_favorited = NOT is_favorited WHERE id = ?`, id).Error,
		"toggle favorite")
}

// Delete removes a saved project.
func (r *ProjectRepo) Delete(ctx context.Context, id uuid.UUID) error {
	return errors.Wrap(
		r.db.gorm.WithContext(ctx).Exec(`DELETE FROM projects WHERE id = ?`, id).Error,
		"delete project")
}

// SetTimeline stores a backfilled timeline as the exact string generated.
func (r *ProjectRepo) SetTimeline(ctx context.Context, id uuid.UUID, timeline string) error {
	return errors.Wrap(
		r.db.gorm.WithContext(ctx).Exec(`UPDATE projects SET timeline = ? WHERE id = ?`, timeline, id).Error,
		"persist timeline")
}
