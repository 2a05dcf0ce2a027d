package docstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/ieltsmock-backend/internal/model"
	"github.com/stemsi/ieltsmock-backend/internal/repository/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const legacyDoc = `{
  "owners": [{"id": "o1", "login": "owner@example.com", "password": "$2a$04$hash", "name": "Owner"}],
  "admins": [{"id": "a1", "email": "admin@example.com", "password": "$2a$04$hash", "name": "Admin", "isActive": true}],
  "students": [{"id": "s1", "email": "siti@example.com", "password": "$2a$04$hash", "fullName": "Siti"}],
  "mocTests": [{"id": "6f1c2a4e-0000-4000-8000-000000000001", "title": "Variant A", "type": "moc",
    "writingTopics": [], "answerKey": {"reading": {"1": "C"}}, "parsedContent": {"reading": {"passages": []}},
    "createdBy": "a1", "isActive": true}],
  "tests": [{"id": "6f1c2a4e-0000-4000-8000-0000000000aa", "title": "Mock 1", "type": "academic",
    "reading": {"passages": ["p1"]}, "listening": null, "writing": null,
    "answerKey": {"reading": {"1": "B", "2": ["water", "H2O"]}, "speaking": {"1": "x"}},
    "duration": 0, "isActive": true, "mocIds": ["6f1c2a4e-0000-4000-8000-000000000001", "bad"],
    "createdBy": "a1", "startedAt": "2024-03-01T09:00:00.000Z"},
    {"id": "not-a-uuid", "title": "Broken", "createdBy": "a1"}],
  "testKeys": [
    {"id": "k1", "key": "abcd1234", "testId": "6f1c2a4e-0000-4000-8000-0000000000aa", "adminId": "a1",
     "isActive": true, "usedBy": "Siti", "usedAt": "2024-03-01T09:05:00.000Z"},
    {"id": "k2", "key": "EFGH5678", "testId": "6f1c2a4e-0000-4000-8000-0000000000aa", "adminId": "gone",
     "isActive": false, "usedBy": null, "usedAt": null}],
  "attempts": [{"id": "6f1c2a4e-0000-4000-8000-0000000000b1", "testKey": "ABCD1234",
    "testId": "6f1c2a4e-0000-4000-8000-0000000000aa", "studentName": "Siti", "studentId": "s1",
    "answers": {"reading": {"1": "B"}}, "highlights": [],
    "startedAt": "2024-03-01T09:05:00.000Z", "lastSaved": "2024-03-01T10:00:00.000Z",
    "submittedAt": "2024-03-01T11:00:00.000Z", "isSubmitted": true, "duration": 6900}],
  "queue": [
    {"id": "6f1c2a4e-0000-4000-8000-0000000000c1", "studentId": "s1", "testCode": "abcd1234",
     "testId": "6f1c2a4e-0000-4000-8000-0000000000aa", "status": "waiting", "joinedAt": "2024-03-01T08:59:00.000Z"},
    {"id": "6f1c2a4e-0000-4000-8000-0000000000c2", "studentId": "s1", "testCode": "abcd1234",
     "testId": "6f1c2a4e-0000-4000-8000-0000000000aa", "status": "left", "joinedAt": "2024-03-01T08:00:00.000Z"}]
}`

func TestLoadCreatesMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "database.json")

	doc, err := Load(path)
	require.NoError(t, err)
	assert.Empty(t, doc.Tests)
	assert.NotNil(t, doc.Queue)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"testKeys": []`)
	assert.Contains(t, string(raw), `"mocTests": []`)
}

func TestLoadDefaultsMissingCollections(t *testing.T) {
	path := filepath.Join(t.TempDir(), "database.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"tests": [{"id": "t1", "title": "Only tests"}]}`), 0o644))

	doc, err := Load(path)
	require.NoError(t, err)
	require.Len(t, doc.Tests, 1)
	assert.NotNil(t, doc.Owners)
	assert.NotNil(t, doc.Attempts)
	assert.NotNil(t, doc.Queue)
}

func TestLoadRejectsMalformedJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "database.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"tests": [`), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestSaveKeepsCollectionsOnReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "database.json")
	used := "Alice"
	doc := &Document{TestKeys: []TestKey{{Key: "K1", TestID: "t1", IsActive: true, UsedBy: &used}}}
	require.NoError(t, Save(path, doc))

	got, err := Load(path)
	require.NoError(t, err)
	require.Len(t, got.TestKeys, 1)
	assert.Equal(t, "Alice", *got.TestKeys[0].UsedBy)
	assert.NotNil(t, got.Students)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file should be gone")
}

func loadLegacy(t *testing.T) *Document {
	t.Helper()
	path := filepath.Join(t.TempDir(), "database.json")
	require.NoError(t, os.WriteFile(path, []byte(legacyDoc), 0o644))
	doc, err := Load(path)
	require.NoError(t, err)
	return doc
}

func TestImportLegacyDocument(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()

	stats, err := NewImporter(store, zerolog.Nop()).Import(ctx, loadLegacy(t))
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Admins)
	assert.Equal(t, 1, stats.Students)
	assert.Equal(t, 1, stats.MocTests)
	assert.Equal(t, 1, stats.Tests)
	assert.Equal(t, 2, stats.Keys)
	assert.Equal(t, 1, stats.Attempts)
	assert.Equal(t, 1, stats.Queue)

	owner, err := store.Admins.GetByEmail(ctx, "owner@example.com")
	require.NoError(t, err)
	assert.Equal(t, model.AdminRoleOwner, owner.Role)
	admin, err := store.Admins.GetByEmail(ctx, "admin@example.com")
	require.NoError(t, err)

	testID := uuid.MustParse("6f1c2a4e-0000-4000-8000-0000000000aa")
	test, err := store.Tests.GetByID(ctx, testID)
	require.NoError(t, err)
	assert.True(t, test.IsActive)
	assert.Equal(t, model.DefaultTestDuration, test.Duration)
	assert.Equal(t, admin.ID, test.CreatedBy)
	assert.Len(t, test.MocIDs, 1)
	assert.Equal(t, "water|H2O", test.AnswerKey[model.SectionReading]["2"])
	assert.NotContains(t, test.AnswerKey, model.Section("speaking"))

	used, err := store.Keys.Get(ctx, "ABCD1234")
	require.NoError(t, err)
	require.NotNil(t, used.UsedBy)
	assert.Equal(t, "Siti", *used.UsedBy)

	orphan, err := store.Keys.Get(ctx, "EFGH5678")
	require.NoError(t, err)
	assert.False(t, orphan.IsActive)
	assert.Equal(t, owner.ID, orphan.CreatedBy, "keys of deleted admins fall back to the owner")

	attempt, err := store.Attempts.GetByID(ctx, uuid.MustParse("6f1c2a4e-0000-4000-8000-0000000000b1"))
	require.NoError(t, err)
	assert.True(t, attempt.IsSubmitted)
	assert.Equal(t, 6900, attempt.Duration)
	assert.Equal(t, "B", attempt.Answers.Reading["1"])
	require.NotNil(t, attempt.StudentID)
	require.NotNil(t, attempt.LastSaved)

	student, err := store.Students.GetByEmail(ctx, "siti@example.com")
	require.NoError(t, err)
	entry, err := store.Queue.FindActiveByStudent(ctx, student.ID)
	require.NoError(t, err)
	assert.Equal(t, model.QueueStatusWaiting, entry.Status)
	assert.Equal(t, "ABCD1234", entry.TestCode)
}

func TestImportIsRerunnable(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	im := NewImporter(store, zerolog.Nop())

	_, err := im.Import(ctx, loadLegacy(t))
	require.NoError(t, err)

	stats, err := NewImporter(store, zerolog.Nop()).Import(ctx, loadLegacy(t))
	require.NoError(t, err)
	assert.Zero(t, stats.Admins)
	assert.Zero(t, stats.Tests)
	assert.Zero(t, stats.Keys)
	assert.Zero(t, stats.Attempts)
	assert.Positive(t, stats.Skipped)
}
