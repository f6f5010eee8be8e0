// Package meter enforces the per-user consumable credit balance. Every
// AI-invoking operation must consume one token before issuing its remote
// request.
package meter

import (
	"context"
	errs "errors"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/firi-app/firi/internal/state"
)

// Balance constants. Guest balances live only in memory.
const (
	GuestTokens   = 5
	SignupTokens  = 25
	UpgradeTokens = 500
)

// ErrNoTokens is returned when the balance is exhausted.
var ErrNoTokens = errs.New("out of tokens")

// OutOfTokensMessage is the user-visible exhaustion text.
const OutOfTokensMessage = "You're out of tokens. Upgrade your membership to keep using AI features."

// BalancePersister writes a balance to the external store.
type BalancePersister interface {
	SetTokens(ctx context.Context, id uuid.UUID, tokens int) error
}

// Meter meters the in-memory balance in the state store and mirrors
// decrements to the persister for signed-in non-guest users.
type Meter struct {
	state   *state.Store
	persist BalancePersister
}

func New(st *state.Store, persist BalancePersister) *Meter {
	return &Meter{state: st, persist: persist}
}

// Consume spends one token. On an empty balance it sets the error state
// (and the upgrade prompt for signed-in users) and fails without mutating
// anything. Otherwise it decrements optimistically and persists; a failed
// persist reverts the decrement.
func (m *Meter) Consume(ctx context.Context) error {
	return m.consume(ctx, false)
}

// ConsumeSilent spends one token without surfacing exhaustion in the error
// state. Chat reports failure through the transcript and backfill stays
// silent, so neither wants the banner.
func (m *Meter) ConsumeSilent(ctx context.Context) error {
	return m.consume(ctx, true)
}

func (m *Meter) consume(ctx context.Context, silent bool) error {
	var before int
	var user *state.Identity
	var guest bool
	m.state.Update(func(s *state.AppState) {
		before = s.Tokens
		user = s.User
		guest = s.Guest()
		if before > 0 {
			s.Tokens = before - 1
		} else if !silent {
			s.Error = OutOfTokensMessage
			if user != nil && !guest {
				s.UpgradePrompt = true
			}
		}
	})
	if before <= 0 {
		return ErrNoTokens
	}
	if guest || user == nil {
		return nil
	}
	if err := m.persist.SetTokens(ctx, user.ID, before-1); err != nil {
		// relative revert: another consume may have resolved in between
		m.state.Update(func(s *state.AppState) {
			s.Tokens++
			if !silent {
				s.Error = "Could not update your token balance. Please try again."
			}
		})
		return errors.Wrap(err, "persist decrement")
	}
	return nil
}

// Upgrade sets the balance to the membership credit amount and persists it
// unconditionally for signed-in users. Payment is simulated; there is no
// settlement step.
func (m *Meter) Upgrade(ctx context.Context) error {
	var user *state.Identity
	var guest bool
	m.state.Update(func(s *state.AppState) {
		user = s.User
		guest = s.Guest()
		s.Tokens = UpgradeTokens
		s.UpgradePrompt = false
		s.Error = ""
		if s.User != nil {
			u := *s.User
			u.Plan = "pro"
			s.User = &u
		}
	})
	if guest || user == nil {
		return nil
	}
	if err := m.persist.SetTokens(ctx, user.ID, UpgradeTokens); err != nil {
		return errors.Wrap(err, "persist upgrade")
	}
	return nil
}
