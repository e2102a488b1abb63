package identity

import (
	"context"
	"fmt"
	"time"

	app_errors "pickwise/client/internal/errors"
)

// Tier is the user's entitlement level.
type Tier string

const (
	TierFree  Tier = "free"
	TierPro   Tier = "pro"
	TierElite Tier = "elite"
)

// User is the authenticated identity resolved from the auth collaborator.
type User struct {
	ID   string
	Tier Tier
}

// AuthProvider yields the stable opaque user id of the signed-in user. It is
// injected into the session rather than read from ambient state so the turn
// machinery can be tested without any auth backend.
type AuthProvider interface {
	// CurrentUser returns the authenticated user or
	// app_errors.ErrUnauthenticated when nobody is signed in.
	CurrentUser(ctx context.Context) (*User, error)
}

// EntitlementProvider gates message submission on the user's tier. The check
// runs locally, before any network call.
type EntitlementProvider interface {
	// CanSendMessage returns nil when the user may submit another message,
	// or app_errors.ErrQuotaExceeded when the tier's allowance is spent.
	CanSendMessage(ctx context.Context, user *User) error
}

// MaxPicks is the per-tier cap on picks the assistant may propose, sent as
// turn context with every request.
func MaxPicks(tier Tier) int {
	switch tier {
	case TierElite:
		return 10
	case TierPro:
		return 5
	default:
		return 2
	}
}

// StaticAuth is an AuthProvider with a fixed identity, used by the CLI
// surface (identity comes from config) and by tests.
type StaticAuth struct {
	user *User
}

// NewStaticAuth returns a provider for the given identity. An empty id means
// signed out.
func NewStaticAuth(id string, tier Tier) *StaticAuth {
	if id == "" {
		return &StaticAuth{}
	}
	return &StaticAuth{user: &User{ID: id, Tier: tier}}
}

func (a *StaticAuth) CurrentUser(ctx context.Context) (*User, error) {
	if a.user == nil {
		return nil, app_errors.ErrUnauthenticated
	}
	return a.user, nil
}

// MessageCounter reports how many messages a user has sent since a given
// time. The repository satisfies it.
type MessageCounter interface {
	CountUserMessagesSince(ctx context.Context, userID string, since time.Time) (int, error)
}

// TierEntitlements enforces the free tier's daily message allowance against
// the local history store. Pro and elite are unlimited.
type TierEntitlements struct {
	counter    MessageCounter
	dailyLimit int
	now        func() time.Time
}

func NewTierEntitlements(counter MessageCounter, freeDailyLimit int) *TierEntitlements {
	return &TierEntitlements{
		counter:    counter,
		dailyLimit: freeDailyLimit,
		now:        time.Now,
	}
}

func (e *TierEntitlements) CanSendMessage(ctx context.Context, user *User) error {
	if user == nil {
		return app_errors.ErrUnauthenticated
	}
	if user.Tier == TierPro || user.Tier == TierElite {
		return nil
	}
	if e.dailyLimit <= 0 {
		return nil
	}

	since := e.now().Add(-24 * time.Hour)
	sent, err := e.counter.CountUserMessagesSince(ctx, user.ID, since)
	if err != nil {
		return fmt.Errorf("could not count recent messages: %w", err)
	}
	if sent >= e.dailyLimit {
		return app_errors.ErrQuotaExceeded
	}
	return nil
}
