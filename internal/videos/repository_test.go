package videos

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/PortNumber53/tubeshelf/backend/internal/models"
	"github.com/PortNumber53/tubeshelf/backend/internal/quota"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var videoCols = []string{"id", "user_id", "title", "description", "video_url", "thumbnail_url", "category",
	"upload_date", "is_favorite", "last_played_position"}

type memLists struct {
	lists       map[string][]models.Video
	invalidated []string
}

func newMemLists() *memLists { return &memLists{lists: map[string][]models.Video{}} }

func (m *memLists) Get(_ context.Context, userID string) ([]models.Video, bool, error) {
	l, ok := m.lists[userID]
	return l, ok, nil
}

func (m *memLists) Set(_ context.Context, userID string, list []models.Video) error {
	m.lists[userID] = list
	return nil
}

func (m *memLists) Invalidate(_ context.Context, userID string) error {
	delete(m.lists, userID)
	m.invalidated = append(m.invalidated, userID)
	return nil
}

func newTestRepo(t *testing.T, lists ListCache) (*Repository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewRepository(db, quota.NewGate(db), lists), mock
}

func TestList_EmptyUserSkipsQuery(t *testing.T) {
	repo, mock := newTestRepo(t, nil)
	got, err := repo.List(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestList_OrderedQueryAndCacheFill(t *testing.T) {
	lists := newMemLists()
	repo, mock := newTestRepo(t, lists)
	now := time.Now().UTC()

	mock.ExpectQuery(`FROM public\.videos\s+WHERE user_id = \$1\s+ORDER BY upload_date DESC`).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows(videoCols).
			AddRow("v2", "u1", "Second", nil, "https://youtu.be/b", nil, "Music", now, true, 42).
			AddRow("v1", "u1", "First", "desc", "https://youtu.be/a", "thumb", "Uncategorized", now.Add(-time.Hour), false, 0))

	got, err := repo.List(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "v2", got[0].ID)
	assert.Nil(t, got[0].Description)
	assert.Equal(t, "desc", *got[1].Description)
	assert.Len(t, lists.lists["u1"], 2)

	// second call is served from cache
	again, err := repo.List(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, got, again)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByID_ScopedToOwner(t *testing.T) {
	repo, mock := newTestRepo(t, nil)

	mock.ExpectQuery(`WHERE id = \$1 AND user_id = \$2`).
		WithArgs("v1", "intruder").
		WillReturnRows(sqlmock.NewRows(videoCols))

	_, err := repo.GetByID(context.Background(), "intruder", "v1")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestInsert_PreservesFieldsAndDefaults(t *testing.T) {
	lists := newMemLists()
	repo, mock := newTestRepo(t, lists)
	now := time.Now().UTC()

	title := "  Ünïcode title\twith spaces  "
	desc := "line1\nline2"
	url := "https://www.youtube.com/watch?v=abc&t=1"

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "plan_type", "uploads_used", "monthly_upload_limit"}).AddRow("u1", "free", 3, 10))
	mock.ExpectQuery(`INSERT INTO public\.videos`).
		WithArgs("u1", title, desc, url, sqlmock.AnyArg(), models.Uncategorized).
		WillReturnRows(sqlmock.NewRows(videoCols).
			AddRow("v9", "u1", title, desc, url, nil, models.Uncategorized, now, false, 0))
	mock.ExpectExec(`uploads_used = uploads_used \+ 1`).WithArgs("u1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	saved, out, err := repo.Insert(context.Background(), "u1", models.Video{Title: title, Description: &desc, VideoURL: url})
	require.NoError(t, err)
	assert.True(t, out.Permitted())
	assert.Equal(t, 4, out.UploadsUsed)
	assert.Equal(t, "v9", saved.ID)
	assert.Equal(t, title, saved.Title)
	assert.Equal(t, desc, *saved.Description)
	assert.False(t, saved.IsFavorite)
	assert.Zero(t, saved.LastPlayedPosition)
	assert.Equal(t, []string{"u1"}, lists.invalidated)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsert_LimitReachedWritesNothing(t *testing.T) {
	lists := newMemLists()
	repo, mock := newTestRepo(t, lists)

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "plan_type", "uploads_used", "monthly_upload_limit"}).AddRow("u1", "free", 10, 10))
	mock.ExpectRollback()

	_, out, err := repo.Insert(context.Background(), "u1", models.Video{Title: "t", VideoURL: "https://youtu.be/x"})
	require.NoError(t, err)
	assert.Equal(t, quota.LimitReached, out.Kind)
	assert.Equal(t, models.PlanFree, out.PlanType)
	assert.Empty(t, lists.invalidated)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertWithNewCategory_CreatesCategoryInsideGate(t *testing.T) {
	repo, mock := newTestRepo(t, nil)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "plan_type", "uploads_used", "monthly_upload_limit"}).AddRow("u1", "free", 2, 10))
	mock.ExpectExec(`INSERT INTO public\.categories .*ON CONFLICT \(user_id, name\) DO NOTHING`).
		WithArgs("Music", "u1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`INSERT INTO public\.videos`).
		WithArgs("u1", "t", nil, "https://youtu.be/x", nil, "Music").
		WillReturnRows(sqlmock.NewRows(videoCols).AddRow("v1", "u1", "t", nil, "https://youtu.be/x", nil, "Music", now, false, 0))
	mock.ExpectExec(`uploads_used = uploads_used \+ 1`).WithArgs("u1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	saved, out, err := repo.InsertWithNewCategory(context.Background(), "u1",
		models.Video{Title: "t", VideoURL: "https://youtu.be/x", Category: "Talks"}, " Music ")
	require.NoError(t, err)
	assert.True(t, out.Permitted())
	assert.Equal(t, "Music", saved.Category)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertWithNewCategory_RejectedUploadCreatesNoCategory(t *testing.T) {
	repo, mock := newTestRepo(t, nil)

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "plan_type", "uploads_used", "monthly_upload_limit"}).AddRow("u1", "free", 10, 10))
	mock.ExpectRollback()

	_, out, err := repo.InsertWithNewCategory(context.Background(), "u1",
		models.Video{Title: "t", VideoURL: "https://youtu.be/x"}, "Music")
	require.NoError(t, err)
	assert.Equal(t, quota.LimitReached, out.Kind)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertWithNewCategory_UncategorizedIsNotCreated(t *testing.T) {
	repo, mock := newTestRepo(t, nil)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "plan_type", "uploads_used", "monthly_upload_limit"}).AddRow("u1", "free", 0, 10))
	mock.ExpectQuery(`INSERT INTO public\.videos`).
		WithArgs("u1", "t", nil, "https://youtu.be/x", nil, models.Uncategorized).
		WillReturnRows(sqlmock.NewRows(videoCols).AddRow("v1", "u1", "t", nil, "https://youtu.be/x", nil, models.Uncategorized, now, false, 0))
	mock.ExpectExec(`uploads_used = uploads_used \+ 1`).WithArgs("u1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	_, _, err := repo.InsertWithNewCategory(context.Background(), "u1",
		models.Video{Title: "t", VideoURL: "https://youtu.be/x"}, "uncategorized")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsert_RequiresTitleAndURL(t *testing.T) {
	repo, mock := newTestRepo(t, nil)
	_, _, err := repo.Insert(context.Background(), "u1", models.Video{Title: " ", VideoURL: "https://youtu.be/x"})
	assert.ErrorIs(t, err, ErrInvalid)
	_, _, err = repo.Insert(context.Background(), "u1", models.Video{Title: "t"})
	assert.ErrorIs(t, err, ErrInvalid)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdate_FullReplaceScoped(t *testing.T) {
	repo, mock := newTestRepo(t, nil)
	now := time.Now().UTC()

	mock.ExpectQuery(`UPDATE public\.videos\s+SET title = \$3`).
		WithArgs("v1", "u1", "New", sqlmock.AnyArg(), "https://youtu.be/a", sqlmock.AnyArg(), "Music", true, 125).
		WillReturnRows(sqlmock.NewRows(videoCols).AddRow("v1", "u1", "New", nil, "https://youtu.be/a", nil, "Music", now, true, 125))

	saved, err := repo.Update(context.Background(), "u1", models.Video{
		ID: "v1", Title: "New", VideoURL: "https://youtu.be/a", Category: "Music", IsFavorite: true, LastPlayedPosition: 125,
	})
	require.NoError(t, err)
	assert.True(t, saved.IsFavorite)
	assert.Equal(t, 125, saved.LastPlayedPosition)
}

func TestUpdate_OtherOwnersVideo(t *testing.T) {
	repo, mock := newTestRepo(t, nil)
	mock.ExpectQuery(`UPDATE public\.videos`).WillReturnRows(sqlmock.NewRows(videoCols))

	_, err := repo.Update(context.Background(), "u2", models.Video{ID: "v1", Title: "x", VideoURL: "https://youtu.be/a"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDelete_Scoped(t *testing.T) {
	lists := newMemLists()
	repo, mock := newTestRepo(t, lists)

	mock.ExpectExec(`DELETE FROM public\.videos WHERE id = \$1 AND user_id = \$2`).
		WithArgs("v1", "u1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM public\.videos`).
		WithArgs("v1", "u2").WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.Delete(context.Background(), "u1", "v1"))
	assert.ErrorIs(t, repo.Delete(context.Background(), "u2", "v1"), ErrNotFound)
	assert.Equal(t, []string{"u1"}, lists.invalidated)
}

func TestSearch_EscapesPattern(t *testing.T) {
	repo, mock := newTestRepo(t, nil)

	mock.ExpectQuery(`title ILIKE \$2 OR COALESCE\(description, ''\) ILIKE \$2 OR category ILIKE \$2`).
		WithArgs("u1", `%50\% off\_now%`).
		WillReturnRows(sqlmock.NewRows(videoCols))

	got, err := repo.Search(context.Background(), "u1", "50% off_now")
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestList_DatabaseError(t *testing.T) {
	repo, mock := newTestRepo(t, nil)
	mock.ExpectQuery(`FROM public\.videos`).WillReturnError(errors.New("connection reset"))

	_, err := repo.List(context.Background(), "u1")
	assert.Error(t, err)
}
