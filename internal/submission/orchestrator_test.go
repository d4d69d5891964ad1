package submission

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/likhity/photohunter-backend/internal/config"
	"github.com/likhity/photohunter-backend/internal/storage"
	"github.com/likhity/photohunter-backend/internal/validation"
)

const (
	testDomain    = "https://media.photohunter.test/"
	testUserID    = "7c9a1fd1-93d1-44f5-9d9a-0f8f4a3c21aa"
	testChallenge = "f2b6a8f0-5a3e-4e43-a9ee-6f3d9f6f08bb"
	referenceURL  = testDomain + "challenges/ref.jpg"
)

type fakeGateway struct {
	uploadURL string
	uploadErr error
	uploads   int
	deleted   []string
	presigned []string
}

func (f *fakeGateway) Upload(_ context.Context, _ []byte, folder, extension string) (string, error) {
	f.uploads++
	if f.uploadErr != nil {
		return "", f.uploadErr
	}
	return f.uploadURL, nil
}

func (f *fakeGateway) Presign(_ context.Context, key string, _ time.Duration) (string, error) {
	f.presigned = append(f.presigned, key)
	return testDomain + key + "?X-Amz-Signature=sig", nil
}

func (f *fakeGateway) ExtractKey(url string) string {
	if !strings.HasPrefix(url, testDomain) {
		return ""
	}
	key := strings.TrimPrefix(url, testDomain)
	if i := strings.IndexByte(key, '?'); i >= 0 {
		key = key[:i]
	}
	return key
}

func (f *fakeGateway) Delete(_ context.Context, key string) bool {
	f.deleted = append(f.deleted, key)
	return true
}

type fakeComparator struct {
	raw        string
	err        error
	urlCalls   int
	byteCalls  int
	lastRefURL string
	lastSubURL string
}

func (f *fakeComparator) Compare(_ context.Context, referenceURL, submittedURL, _ string) (string, error) {
	f.urlCalls++
	f.lastRefURL = referenceURL
	f.lastSubURL = submittedURL
	return f.raw, f.err
}

func (f *fakeComparator) CompareBytes(_ context.Context, referenceURL string, _ []byte, _, _ string) (string, error) {
	f.byteCalls++
	f.lastRefURL = referenceURL
	return f.raw, f.err
}

type fakeCounter struct {
	increments []string
}

func (f *fakeCounter) Increment(_ context.Context, userID string) {
	f.increments = append(f.increments, userID)
}

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{
		Conn:                 sqlDB,
		PreferSimpleProtocol: true,
	}), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	return db, mock
}

func newTestOrchestrator(t *testing.T, db *gorm.DB, gateway Gateway, comparator Comparator, counter Counter) (*Orchestrator, string) {
	t.Helper()
	root := t.TempDir()
	local := storage.NewLocalStore(config.MediaConfig{Root: root, URLPrefix: "/media"}, zerolog.Nop())
	return New(db, gateway, local, comparator, counter, "http://localhost:8080", 15*time.Minute, zerolog.Nop()), root
}

func challengeRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "name", "description", "reference_image", "is_active"}).
		AddRow(testChallenge, "Gothic Cathedral", "Find the cathedral on 5th street", referenceURL, true)
}

func expectChallengeLookup(mock sqlmock.Sqlmock, rows *sqlmock.Rows) {
	mock.ExpectQuery(`SELECT \* FROM "challenges"`).WillReturnRows(rows)
}

func TestSubmitChallengeNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	expectChallengeLookup(mock, sqlmock.NewRows([]string{"id"}))

	gateway := &fakeGateway{uploadURL: testDomain + "submissions/new.jpg"}
	o, _ := newTestOrchestrator(t, db, gateway, &fakeComparator{}, nil)

	_, err := o.Submit(context.Background(), testUserID, testChallenge, "photo.jpg", []byte("img"))

	assert.ErrorIs(t, err, ErrChallengeNotFound)
	assert.Zero(t, gateway.uploads)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmitUnsupportedFormatBeforeAnyIO(t *testing.T) {
	db, mock := newMockDB(t)
	expectChallengeLookup(mock, challengeRows())

	gateway := &fakeGateway{uploadURL: testDomain + "submissions/new.jpg"}
	comparator := &fakeComparator{}
	o, _ := newTestOrchestrator(t, db, gateway, comparator, nil)

	_, err := o.Submit(context.Background(), testUserID, testChallenge, "document.pdf", []byte("img"))

	assert.ErrorIs(t, err, ErrUnsupportedFormat)
	assert.Zero(t, gateway.uploads)
	assert.Zero(t, comparator.urlCalls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmitRejectedVerdictTouchesNothing(t *testing.T) {
	db, mock := newMockDB(t)
	expectChallengeLookup(mock, challengeRows())

	gateway := &fakeGateway{uploadURL: testDomain + "submissions/new.jpg"}
	comparator := &fakeComparator{raw: `{"similarity_score":0.2,"confidence_score":0.9,"is_valid":false,"notes":"different buildings"}`}
	counter := &fakeCounter{}
	o, _ := newTestOrchestrator(t, db, gateway, comparator, counter)

	result, err := o.Submit(context.Background(), testUserID, testChallenge, "photo.jpg", []byte("img"))

	require.NoError(t, err)
	assert.Nil(t, result.Completion)
	assert.False(t, result.Validation.IsValid)
	assert.Equal(t, 0.2, result.Validation.SimilarityScore)
	// The fresh upload must not be orphaned.
	assert.Equal(t, []string{"submissions/new.jpg"}, gateway.deleted)
	assert.Empty(t, counter.increments)
	// No transaction means no ledger writes at all.
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmitComparatorGivenPresignedURLs(t *testing.T) {
	db, mock := newMockDB(t)
	expectChallengeLookup(mock, challengeRows())

	gateway := &fakeGateway{uploadURL: testDomain + "submissions/new.jpg"}
	comparator := &fakeComparator{raw: `{"is_valid":false}`}
	o, _ := newTestOrchestrator(t, db, gateway, comparator, nil)

	_, err := o.Submit(context.Background(), testUserID, testChallenge, "photo.jpg", []byte("img"))

	require.NoError(t, err)
	assert.Contains(t, comparator.lastRefURL, "X-Amz-Signature")
	assert.Contains(t, comparator.lastSubURL, "X-Amz-Signature")
	assert.Equal(t, []string{"challenges/ref.jpg", "submissions/new.jpg"}, gateway.presigned)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmitFirstValidSubmissionCommits(t *testing.T) {
	db, mock := newMockDB(t)
	expectChallengeLookup(mock, challengeRows())

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "completions" .*FOR UPDATE`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectExec(`INSERT INTO "completions"`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT \* FROM "validation_records"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectExec(`INSERT INTO "validation_records"`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT \* FROM "user_profiles"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectExec(`INSERT INTO "user_profiles"`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE "user_profiles" SET "total_completions"`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	gateway := &fakeGateway{uploadURL: testDomain + "submissions/new.jpg"}
	comparator := &fakeComparator{raw: `{"similarity_score":0.92,"confidence_score":0.88,"is_valid":true,"notes":"same cathedral"}`}
	counter := &fakeCounter{}
	o, _ := newTestOrchestrator(t, db, gateway, comparator, counter)

	result, err := o.Submit(context.Background(), testUserID, testChallenge, "photo.jpg", []byte("img"))

	require.NoError(t, err)
	require.NotNil(t, result.Completion)
	assert.Equal(t, testDomain+"submissions/new.jpg", result.Completion.SubmittedImage)
	assert.True(t, result.Completion.IsValid)
	assert.Equal(t, 0.92, result.Completion.ValidationScore)
	assert.True(t, result.Validation.IsValid)
	assert.Equal(t, []string{testUserID}, counter.increments)
	assert.Empty(t, gateway.deleted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmitValidResubmissionOverwritesWithoutRecount(t *testing.T) {
	db, mock := newMockDB(t)
	expectChallengeLookup(mock, challengeRows())

	previousURL := testDomain + "submissions/old.jpg"
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "completions" .*FOR UPDATE`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "challenge_id", "submitted_image", "is_valid"}).
			AddRow("11111111-2222-3333-4444-555555555555", testUserID, testChallenge, previousURL, true))
	mock.ExpectExec(`UPDATE "completions"`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT \* FROM "validation_records"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "completion_id"}).
			AddRow("66666666-7777-8888-9999-000000000000", "11111111-2222-3333-4444-555555555555"))
	mock.ExpectExec(`UPDATE "validation_records"`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	gateway := &fakeGateway{uploadURL: testDomain + "submissions/new.jpg"}
	comparator := &fakeComparator{raw: `{"similarity_score":0.95,"is_valid":true}`}
	counter := &fakeCounter{}
	o, _ := newTestOrchestrator(t, db, gateway, comparator, counter)

	result, err := o.Submit(context.Background(), testUserID, testChallenge, "photo.jpg", []byte("img"))

	require.NoError(t, err)
	require.NotNil(t, result.Completion)
	// Already-valid completions keep their counter; only the replaced
	// photo gets cleaned up.
	assert.Empty(t, counter.increments)
	assert.Equal(t, []string{"submissions/old.jpg"}, gateway.deleted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmitStorageFallbackUsesLocalMediaAndBytes(t *testing.T) {
	db, mock := newMockDB(t)
	expectChallengeLookup(mock, challengeRows())

	gateway := &fakeGateway{uploadErr: &storage.StorageError{Op: "upload", Cause: errors.New("bucket unavailable")}}
	comparator := &fakeComparator{raw: `{"is_valid":false,"notes":"not the same place"}`}
	o, root := newTestOrchestrator(t, db, gateway, comparator, nil)

	result, err := o.Submit(context.Background(), testUserID, testChallenge, "photo.jpg", []byte("img"))

	require.NoError(t, err)
	assert.Nil(t, result.Completion)
	// Local files have no fetchable URL, so the bytes travel inline.
	assert.Equal(t, 1, comparator.byteCalls)
	assert.Zero(t, comparator.urlCalls)

	// Rollback removed the fallback file again.
	entries, err := os.ReadDir(filepath.Join(root, "submissions"))
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmitComparatorFailureFailsClosed(t *testing.T) {
	db, mock := newMockDB(t)
	expectChallengeLookup(mock, challengeRows())

	gateway := &fakeGateway{uploadURL: testDomain + "submissions/new.jpg"}
	comparator := &fakeComparator{err: fmt.Errorf("model timed out")}
	o, _ := newTestOrchestrator(t, db, gateway, comparator, nil)

	result, err := o.Submit(context.Background(), testUserID, testChallenge, "photo.jpg", []byte("img"))

	require.NoError(t, err)
	assert.Nil(t, result.Completion)
	assert.Equal(t, validation.FallbackVerdict(), result.Validation)
	assert.Equal(t, []string{"submissions/new.jpg"}, gateway.deleted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExtensionOf(t *testing.T) {
	assert.Equal(t, "jpg", extensionOf("photo.JPG"))
	assert.Equal(t, "webp", extensionOf("a.b.webp"))
	assert.Equal(t, "", extensionOf("noextension"))
	assert.Equal(t, "", extensionOf("trailingdot."))
}

func TestImageExtension(t *testing.T) {
	ext, ok := ImageExtension("cathedral.PNG")
	assert.True(t, ok)
	assert.Equal(t, "png", ext)

	_, ok = ImageExtension("document.pdf")
	assert.False(t, ok)
}
