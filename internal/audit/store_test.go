package audit

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/portalguard/portalguard/internal/platform/database/databasetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildBatchInsert(t *testing.T) {
	id := uuid.New()

	events := []Event{
		{
			ID:          id,
			PrincipalID: "user-1",
			Role:        "moderator",
			Action:      ActionAccessDenied,
			Method:      "GET",
			Path:        "/admin",
			Pattern:     "/admin",
			Metadata:    map[string]any{MetadataClass: "page"},
			Source:      SourceGateway,
		},
		{
			ID:     uuid.New(),
			Action: ActionSignInRequired,
			Path:   "/dashboard",
			Source: SourceGateway,
		},
	}

	sql, args, err := buildBatchInsert(events)
	require.NoError(t, err)
	assert.Contains(t, sql, "INSERT INTO authz_events")
	assert.Contains(t, sql, "($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)")
	assert.Contains(t, sql, "($12, $13,")
	assert.Len(t, args, 22)
	assert.Equal(t, id, args[0])
	assert.Equal(t, "user-1", args[1])
	// nil metadata stays NULL
	assert.Nil(t, args[19])
}

func TestBuildBatchInsert_Empty(t *testing.T) {
	store := NewStore()
	err := store.InsertBatch(context.Background(), nil, nil)
	require.NoError(t, err)
}

func TestBuildListQuery_NoFilters(t *testing.T) {
	sql, args := buildListQuery(ListEventsParams{Limit: 50})
	assert.NotContains(t, sql, "WHERE")
	assert.Contains(t, sql, "LIMIT $1")
	assert.Equal(t, []any{50}, args)
}

func TestBuildListQuery_AllFilters(t *testing.T) {
	principal := "user-1"
	action := ActionAccessDenied
	source := SourceGateway
	after := time.Date(2026, 2, 25, 0, 0, 0, 0, time.UTC)
	before := time.Date(2026, 2, 26, 0, 0, 0, 0, time.UTC)

	sql, args := buildListQuery(ListEventsParams{
		PrincipalID: &principal,
		Action:      &action,
		Source:      &source,
		After:       &after,
		Before:      &before,
		Limit:       100,
	})
	assert.Contains(t, sql, "principal_id = $1")
	assert.Contains(t, sql, "action = $2")
	assert.Contains(t, sql, "source = $3")
	assert.Contains(t, sql, "created_at > $4")
	assert.Contains(t, sql, "created_at < $5")
	assert.Contains(t, sql, "LIMIT $6")
	assert.Len(t, args, 6)
}

func TestStore_InsertAndList(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	pool := databasetest.NewPool(t)
	ctx := context.Background()
	store := NewStore()

	err := store.InsertBatch(ctx, pool, []Event{
		{ID: uuid.New(), PrincipalID: "u1", Role: "viewer", Action: ActionAccessDenied, Path: "/admin", Source: SourceGateway,
			Metadata: map[string]any{MetadataClass: "page"}},
		{ID: uuid.New(), Action: ActionSignInRequired, Path: "/dashboard", Source: SourceGateway},
	})
	require.NoError(t, err)

	principal := "u1"
	events, err := store.ListEvents(ctx, pool, ListEventsParams{PrincipalID: &principal, Limit: 10})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, ActionAccessDenied, events[0].Action)
	assert.Equal(t, "page", events[0].Metadata[MetadataClass])

	all, err := store.ListEvents(ctx, pool, ListEventsParams{Limit: 10})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
