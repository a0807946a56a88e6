package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"deep-research-agent/internal/entity"
	"deep-research-agent/internal/repository/contract"
	"deep-research-agent/internal/repository/implementation"
	"deep-research-agent/internal/repository/memory"
	"deep-research-agent/pkg/validation"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 3, 15, 10, 30, 0, 123456000, time.UTC)

type testStore struct {
	svc         ISessionService
	sessionsDir string
	reportsDir  string
}

func newFileStore(t *testing.T) testStore {
	t.Helper()
	root := t.TempDir()
	sessionsDir := filepath.Join(root, "sessions")
	reportsDir := filepath.Join(root, "reports")
	require.NoError(t, os.MkdirAll(reportsDir, 0o700))

	backend, err := implementation.NewFileSessionBackend(sessionsDir, 0o600)
	require.NoError(t, err)

	svc := NewSessionService(backend, validation.New(validation.DefaultLimits()), nil, SessionServiceConfig{
		ReportsDir: reportsDir,
		ListLimit:  20,
	}, WithSessionClock(func() time.Time { return fixedNow }))

	return testStore{svc: svc, sessionsDir: sessionsDir, reportsDir: reportsDir}
}

func TestSessionService_CreateLoadRoundTrip(t *testing.T) {
	store := newFileStore(t)
	ctx := context.Background()

	created, err := store.svc.Create(ctx, "Best budget laptop for students", map[string]interface{}{
		"constraints": map[string]interface{}{"budget": 500, "currency": "USD"},
		"preferences": map[string]interface{}{"os": []interface{}{"linux", "windows"}},
	})
	require.NoError(t, err)

	assert.Equal(t, entity.SessionStatusCreated, created.Status)
	assert.Equal(t, 0.0, created.ResearchResults.ConfidenceScore)
	assert.Empty(t, created.ResearchResults.Stages)
	_, err = validation.ValidateSessionID(created.SessionID)
	assert.NoError(t, err)

	loaded, err := store.svc.Load(ctx, created.SessionID)
	require.NoError(t, err)
	assert.Equal(t, created, loaded)
}

func TestSessionService_CreateGeneratesUniqueIDs(t *testing.T) {
	store := newFileStore(t)
	ctx := context.Background()

	seen := map[string]bool{}
	for i := 0; i < 5; i++ {
		session, err := store.svc.Create(ctx, "What is retrieval augmented generation?", nil)
		require.NoError(t, err)
		assert.False(t, seen[session.SessionID], "duplicate id %s", session.SessionID)
		seen[session.SessionID] = true
	}
	assert.Contains(t, seen, "DRA_20240315_103000_123456")
}

func TestSessionService_CreateSurvivesClockSteppingBack(t *testing.T) {
	ctx := context.Background()
	clock := fixedNow
	svc := NewSessionService(memory.NewSessionRepository(), nil, nil, SessionServiceConfig{ReportsDir: t.TempDir()},
		WithSessionClock(func() time.Time { return clock }))

	first, err := svc.Create(ctx, "What is retrieval augmented generation?", nil)
	require.NoError(t, err)

	clock = fixedNow.Add(-time.Hour)
	second, err := svc.Create(ctx, "What is retrieval augmented generation?", nil)
	require.NoError(t, err)
	assert.Greater(t, second.SessionID, first.SessionID)
	assert.Equal(t, "DRA_20240315_103000_123457", second.SessionID)

	clock = fixedNow.Add(time.Hour)
	third, err := svc.Create(ctx, "What is retrieval augmented generation?", nil)
	require.NoError(t, err)
	assert.Equal(t, "DRA_20240315_113000_123456", third.SessionID)
}

func TestSessionService_CreateRejectsInvalidInput(t *testing.T) {
	store := newFileStore(t)
	ctx := context.Background()

	_, err := store.svc.Create(ctx, "hi", nil)
	assert.ErrorIs(t, err, validation.ErrInvalidInput)

	_, err = store.svc.Create(ctx, "A perfectly valid query", map[string]interface{}{"__proto__": "x"})
	assert.ErrorIs(t, err, validation.ErrInvalidInput)
}

func TestSessionService_SessionFilePermissions(t *testing.T) {
	store := newFileStore(t)

	session, err := store.svc.Create(context.Background(), "How do heat pumps work?", nil)
	require.NoError(t, err)

	info, err := os.Stat(filepath.Join(store.sessionsDir, session.SessionID+".json"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestSessionService_LoadErrors(t *testing.T) {
	store := newFileStore(t)
	ctx := context.Background()

	_, err := store.svc.Load(ctx, "../etc/passwd")
	assert.ErrorIs(t, err, validation.ErrInvalidInput)

	_, err = store.svc.Load(ctx, "DRA_20200101_000000")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.ErrorIs(t, err, validation.ErrInvalidInput)

	require.NoError(t, os.WriteFile(filepath.Join(store.sessionsDir, "DRA_20200101_000001.json"), []byte("{broken"), 0o600))
	_, err = store.svc.Load(ctx, "DRA_20200101_000001")
	assert.ErrorIs(t, err, validation.ErrInvalidInput)
	assert.NotErrorIs(t, err, ErrSessionNotFound)
}

func TestSessionService_SaveIsLenientLoadIsStrict(t *testing.T) {
	store := newFileStore(t)
	ctx := context.Background()

	custom := &entity.Session{SessionID: "custom-run", Query: "custom", Status: entity.SessionStatusCreated}
	require.NoError(t, store.svc.Save(ctx, custom))
	assert.FileExists(t, filepath.Join(store.sessionsDir, "custom-run.json"))
	assert.Equal(t, fixedNow, custom.ModifiedAt)

	_, err := store.svc.Load(ctx, "custom-run")
	assert.ErrorIs(t, err, validation.ErrInvalidInput)

	assert.Error(t, store.svc.Save(ctx, &entity.Session{}))
	assert.Error(t, store.svc.Save(ctx, &entity.Session{SessionID: "../escape"}))
}

func TestSessionService_UpdateStageAppends(t *testing.T) {
	store := newFileStore(t)
	ctx := context.Background()

	session, err := store.svc.Create(ctx, "Compare solar and wind energy", nil)
	require.NoError(t, err)

	_, err = store.svc.UpdateStage(ctx, session.SessionID, entity.StageResult{
		Stage:     1,
		StageName: "Query Analysis",
		Finding:   entity.Finding{"summary": "first"},
	})
	require.NoError(t, err)

	updated, err := store.svc.UpdateStage(ctx, session.SessionID, entity.StageResult{
		Stage:     2,
		StageName: "Information Gathering",
		Finding:   entity.Finding{"summary": "second"},
	})
	require.NoError(t, err)
	assert.Equal(t, "stage_2", updated.Status)

	loaded, err := store.svc.Load(ctx, session.SessionID)
	require.NoError(t, err)
	require.Len(t, loaded.ResearchResults.Stages, 2)
	assert.Equal(t, "first", loaded.ResearchResults.Stages[0].Finding["summary"])
	assert.Equal(t, "second", loaded.ResearchResults.Stages[1].Finding["summary"])
	assert.Equal(t, fixedNow, loaded.ResearchResults.Stages[1].Timestamp)

	for _, stage := range []int{0, 7, -1} {
		_, err := store.svc.UpdateStage(ctx, session.SessionID, entity.StageResult{Stage: stage})
		assert.ErrorIs(t, err, validation.ErrInvalidInput, "stage %d", stage)
	}
}

func TestSessionService_UpdateConclusionsAndMarkFailed(t *testing.T) {
	store := newFileStore(t)
	ctx := context.Background()

	session, err := store.svc.Create(ctx, "Should I learn Go or Rust?", nil)
	require.NoError(t, err)

	_, err = store.svc.UpdateConclusions(ctx, session.SessionID, &entity.FinalConclusions{Summary: "x"}, 1.5)
	assert.ErrorIs(t, err, validation.ErrInvalidInput)

	done, err := store.svc.UpdateConclusions(ctx, session.SessionID, &entity.FinalConclusions{
		Summary:         "Learn Go first",
		KeyFindings:     []string{},
		Recommendations: []string{"Start with the tour"},
		KnowledgeGaps:   []string{},
		StagesCompleted: 6,
	}, 0.82)
	require.NoError(t, err)
	assert.Equal(t, entity.SessionStatusCompleted, done.Status)
	assert.Equal(t, 0.82, done.ResearchResults.ConfidenceScore)

	failed, err := store.svc.MarkFailed(ctx, session.SessionID, "context canceled")
	require.NoError(t, err)
	assert.Equal(t, entity.SessionStatusError, failed.Status)
	assert.Equal(t, "context canceled", failed.Error)
}

func TestSessionService_ListNewestFirst(t *testing.T) {
	store := newFileStore(t)
	ctx := context.Background()

	longQuery := strings.Repeat("battery ", 30)
	for i, day := range []string{"20240101", "20240301", "20240201"} {
		session := &entity.Session{
			SessionID: fmt.Sprintf("DRA_%s_120000", day),
			CreatedAt: fixedNow.Add(time.Duration(i) * time.Hour),
			Query:     longQuery,
			Status:    entity.SessionStatusCompleted,
		}
		session.ResearchResults.ConfidenceScore = 0.7
		require.NoError(t, store.svc.Save(ctx, session))
	}
	require.NoError(t, os.WriteFile(filepath.Join(store.sessionsDir, "DRA_20240401_120000.json"), []byte("not json"), 0o600))

	list, err := store.svc.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "DRA_20240301_120000", list[0].SessionID)
	assert.Equal(t, "DRA_20240201_120000", list[1].SessionID)
	assert.Equal(t, "DRA_20240101_120000", list[2].SessionID)
	assert.Equal(t, 0.7, list[0].ConfidenceScore)
	assert.True(t, strings.HasSuffix(list[0].Query, "..."))
	assert.Equal(t, 103, len([]rune(list[0].Query)))

	limited, err := store.svc.List(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestSessionService_DeleteRemovesReport(t *testing.T) {
	store := newFileStore(t)
	ctx := context.Background()

	session, err := store.svc.Create(ctx, "Explain the CAP theorem", nil)
	require.NoError(t, err)

	reportFile := filepath.Join(store.reportsDir, session.SessionID+".md")
	require.NoError(t, os.WriteFile(reportFile, []byte("# Report"), 0o600))

	updated, err := store.svc.UpdateReportPath(ctx, session.SessionID, session.SessionID+".md")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(updated.ReportPath, session.SessionID+".md"))

	_, err = store.svc.UpdateReportPath(ctx, session.SessionID, "../outside.md")
	assert.ErrorIs(t, err, validation.ErrInvalidInput)

	deleted, err := store.svc.Delete(ctx, session.SessionID)
	require.NoError(t, err)
	assert.True(t, deleted)
	assert.NoFileExists(t, reportFile)

	deleted, err = store.svc.Delete(ctx, session.SessionID)
	require.NoError(t, err)
	assert.False(t, deleted)

	_, err = store.svc.Delete(ctx, "not-an-id")
	assert.ErrorIs(t, err, validation.ErrInvalidInput)
}

func TestSessionService_CleanupOld(t *testing.T) {
	backend := memory.NewSessionRepository()
	svc := NewSessionService(backend, nil, nil, SessionServiceConfig{ReportsDir: t.TempDir()},
		WithSessionClock(func() time.Time { return fixedNow }))
	ctx := context.Background()

	old, err := svc.Create(ctx, "An old research question", nil)
	require.NoError(t, err)
	recent, err := svc.Create(ctx, "A recent research question", nil)
	require.NoError(t, err)

	require.True(t, backend.Touch(old.SessionID, fixedNow.Add(-40*24*time.Hour)))
	require.True(t, backend.Touch(recent.SessionID, fixedNow.Add(-2*24*time.Hour)))

	deleted, err := svc.CleanupOld(ctx, 30)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	_, err = svc.Load(ctx, old.SessionID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = svc.Load(ctx, recent.SessionID)
	assert.NoError(t, err)

	_, err = svc.CleanupOld(ctx, -1)
	assert.Error(t, err)
}

func TestSessionService_CleanupIncomplete(t *testing.T) {
	store := newFileStore(t)
	ctx := context.Background()

	write := func(name, body string) {
		require.NoError(t, os.WriteFile(filepath.Join(store.sessionsDir, name+".json"), []byte(body), 0o600))
	}
	stuckCreated := fixedNow.Add(-25 * time.Hour).Format(time.RFC3339Nano)
	healthyCreated := fixedNow.Add(-30 * time.Hour).Format(time.RFC3339Nano)

	write("DRA_20240101_000001", `{"session_id": "DRA_20240101_000001", "created_at": `)
	write("DRA_20240101_000002", `{"session_id": "DRA_20240101_000002", "created_at": "`+healthyCreated+`", "query": "q"}`)
	write("DRA_20240101_000003", `{"session_id": "DRA_20240101_000003", "created_at": "`+stuckCreated+`", "query": "q", "status": "created"}`)
	write("DRA_20240101_000004", `{"session_id": "DRA_20240101_000004", "created_at": "`+healthyCreated+`", "query": "q", "status": "completed",
		"research_results": {"stages": [], "final_conclusions": null, "confidence_score": 0.8}}`)

	deleted, err := store.svc.CleanupIncomplete(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, deleted)

	entries, err := os.ReadDir(store.sessionsDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "DRA_20240101_000004.json", entries[0].Name())
}

func TestSessionService_CleanupIncompleteEdgeCases(t *testing.T) {
	store := newFileStore(t)
	ctx := context.Background()

	write := func(name, body string) {
		require.NoError(t, os.WriteFile(filepath.Join(store.sessionsDir, name+".json"), []byte(body), 0o600))
	}
	fresh := fixedNow.Add(-2 * time.Hour).Format(time.RFC3339Nano)

	write("DRA_20240101_000001", `{"session_id": "a", "created_at": "yesterday", "query": "q", "status": "stage_2"}`)
	write("DRA_20240101_000002", `["not", "an", "object"]`)
	write("DRA_20240101_000003", `{"session_id": "c", "created_at": "`+fresh+`", "query": "q", "status": "created"}`)

	deleted, err := store.svc.CleanupIncomplete(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)
	assert.FileExists(t, filepath.Join(store.sessionsDir, "DRA_20240101_000003.json"))
}

type failingDeleteBackend struct {
	contract.SessionBackend
	failID string
}

func (b failingDeleteBackend) Delete(ctx context.Context, id string) (bool, error) {
	if id == b.failID {
		return false, fmt.Errorf("disk on fire")
	}
	return b.SessionBackend.Delete(ctx, id)
}

func TestSessionService_CleanupContinuesPastDeleteFailures(t *testing.T) {
	inner := memory.NewSessionRepository()
	svc := NewSessionService(failingDeleteBackend{SessionBackend: inner, failID: "DRA_20240101_000001"}, nil, nil,
		SessionServiceConfig{ReportsDir: t.TempDir()}, WithSessionClock(func() time.Time { return fixedNow }))
	ctx := context.Background()

	require.NoError(t, inner.Put(ctx, "DRA_20240101_000001", []byte("{")))
	require.NoError(t, inner.Put(ctx, "DRA_20240101_000002", []byte("{")))

	deleted, err := svc.CleanupIncomplete(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)
}
