// Package tests exercises the full client pipeline end to end: a real HTTP
// stream from the dev backend, the event parser, the turn engine and the
// SQLite-backed history, with nothing mocked.
package tests

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pickwise/client/internal/assistant"
	"pickwise/client/internal/database"
	"pickwise/client/internal/devserver"
	app_errors "pickwise/client/internal/errors"
	"pickwise/client/internal/identity"
	"pickwise/client/internal/model"
	"pickwise/client/internal/repository"
	"pickwise/client/internal/service"
)

func newEnv(t *testing.T, userID string, tier identity.Tier, freeLimit int) (*service.Session, repository.Repository) {
	t.Helper()

	backend := httptest.NewServer(devserver.NewRouter(devserver.Options{}))
	t.Cleanup(backend.Close)

	db, err := database.InitDB(filepath.Join(t.TempDir(), "pickwise.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	repo := repository.NewSQLiteRepository(db)
	client := assistant.NewClient(backend.URL, 5*time.Second)
	auth := identity.NewStaticAuth(userID, tier)
	entitlements := identity.NewTierEntitlements(repo, freeLimit)

	sess := service.NewSession(client, repo, auth, entitlements, service.Options{
		Screen:      "picks",
		IdleTimeout: 5 * time.Second,
	})
	t.Cleanup(sess.Close)
	return sess, repo
}

func TestFullTurnOverHTTP(t *testing.T) {
	sess, repo := newEnv(t, "user-1", identity.TierPro, 0)

	require.NoError(t, sess.Submit(context.Background(), "search tonight's injury news"))
	sess.Wait()

	msgs := sess.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, model.RoleUser, msgs[0].Author)
	require.Equal(t, model.RoleAssistant, msgs[1].Author)
	assert.True(t, msgs[1].Sealed)
	assert.Contains(t, msgs[1].Text, "top pick")
	assert.Equal(t, []string{"web_search"}, msgs[1].ToolsUsed)
	assert.True(t, sess.CanSubmit())

	convID := sess.ConversationID()
	require.NotEmpty(t, convID)
	stored, err := repo.GetMessages(context.Background(), convID)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, msgs[1].Text, stored[1].Text)
	assert.Equal(t, []string{"web_search"}, stored[1].ToolsUsed)
}

func TestErrorFrameSealsWithFallback(t *testing.T) {
	sess, _ := newEnv(t, "user-1", identity.TierFree, 10)

	require.NoError(t, sess.Submit(context.Background(), "please fail"))
	sess.Wait()

	msgs := sess.Messages()
	require.Len(t, msgs, 2)
	assert.True(t, msgs[1].Sealed)
	assert.Equal(t, "The assistant hit an internal error.", msgs[1].Text)
	assert.True(t, sess.CanSubmit())
}

func TestFreeTierQuota(t *testing.T) {
	sess, _ := newEnv(t, "user-1", identity.TierFree, 2)

	for i := 0; i < 2; i++ {
		require.NoError(t, sess.Submit(context.Background(), "who wins tonight?"))
		sess.Wait()
	}

	err := sess.Submit(context.Background(), "one more pick?")
	require.ErrorIs(t, err, app_errors.ErrQuotaExceeded)
	assert.Len(t, sess.Messages(), 4)
}

func TestResumePersistedConversation(t *testing.T) {
	sess, repo := newEnv(t, "user-1", identity.TierElite, 0)

	require.NoError(t, sess.Submit(context.Background(), "who wins tonight?"))
	sess.Wait()
	convID := sess.ConversationID()
	sess.Close()

	backendMsgs, err := repo.GetMessages(context.Background(), convID)
	require.NoError(t, err)
	require.Len(t, backendMsgs, 2)

	resumed := service.NewSession(
		assistant.NewClient("http://localhost:0", time.Second),
		repo,
		identity.NewStaticAuth("user-1", identity.TierElite),
		identity.NewTierEntitlements(repo, 0),
		service.Options{Screen: "picks"},
	)
	t.Cleanup(resumed.Close)

	require.NoError(t, resumed.Resume(context.Background(), convID))
	msgs := resumed.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, backendMsgs[1].Text, msgs[1].Text)
	assert.True(t, resumed.CanSubmit())
}
