package syncx_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/mindengage-exams/internal/db"
	syncx "github.com/mind-engage/mindengage-exams/internal/sync"
)

func newRepo(t *testing.T) *syncx.EventRepo {
	t.Helper()
	conn, err := db.Open(context.Background(), db.DriverSQLite, "file:"+t.Name()+"?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return syncx.NewEventRepo(conn, "site-a")
}

func TestPublishAndList(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	require.NoError(t, repo.Publish(ctx, "attempt.started", "a1", map[string]string{"exam_id": "algebra-1"}))
	require.NoError(t, repo.Publish(ctx, "answer.recorded", "a1", map[string]any{"question_id": "q1", "is_correct": true}))
	require.NoError(t, repo.Publish(ctx, "attempt.started", "a2", nil))

	events, err := repo.List(ctx, "a1", 0)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "attempt.started", events[0].Type)
	assert.Equal(t, "answer.recorded", events[1].Type)
	assert.Less(t, events[0].Seq, events[1].Seq)
	assert.Equal(t, "site-a", events[0].SiteID)
	assert.WithinDuration(t, time.Now(), events[0].CreatedAt, time.Minute)

	var data map[string]string
	require.NoError(t, json.Unmarshal(events[0].Data, &data))
	assert.Equal(t, "algebra-1", data["exam_id"])

	all, err := repo.List(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
	assert.JSONEq(t, "null", string(all[2].Data))

	first, err := repo.List(ctx, "", 1)
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, "a1", first[0].Key)
}

func TestRecentIsNewestFirst(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	for _, key := range []string{"a1", "a2", "a3"} {
		require.NoError(t, repo.Publish(ctx, "AttemptStarted", key, nil))
	}

	recent, err := repo.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "a3", recent[0].Key)
	assert.Equal(t, "a2", recent[1].Key)

	all, err := repo.Recent(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestPublishRejectsUnmarshalableData(t *testing.T) {
	repo := newRepo(t)
	err := repo.Publish(context.Background(), "bad", "a1", make(chan int))
	assert.Error(t, err)
}

func TestAppendKeepsExplicitSite(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	at := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, repo.Append(ctx, syncx.Event{SiteID: "site-b", Type: "attempt.deleted", Key: "a9", CreatedAt: at}))

	events, err := repo.List(ctx, "a9", 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "site-b", events[0].SiteID)
	assert.True(t, at.Equal(events[0].CreatedAt))
}
