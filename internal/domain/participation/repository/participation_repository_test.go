package repository

import (
	"context"
	"testing"
	"time"

	"reward_engine/internal/domain/participation/model"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

func newMockRepo(t *testing.T) (ParticipationRepository, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Silent),
	})
	require.NoError(t, err)
	return NewParticipationRepository(db), mock
}

var reviewedAt = time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

const transitionSQL = `UPDATE "mission_participations" SET .+ WHERE \(id = \$\d+ AND status = \$\d+\) AND "mission_participations"."deleted_at" IS NULL`

func TestTransitionGuardsOnCurrentStatus(t *testing.T) {
	repo, mock := newMockRepo(t)

	// SET 列按字母序：reviewed_by, status, verified_at, updated_at
	mock.ExpectBegin()
	mock.ExpectExec(transitionSQL).
		WithArgs("admin-1", "verified", reviewedAt, sqlmock.AnyArg(), "p-1", "completed").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	ok, err := repo.Transition(context.Background(), "p-1", model.StatusCompleted, model.StatusVerified,
		model.Review{ReviewerID: "admin-1", At: reviewedAt})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransitionLosesRace(t *testing.T) {
	repo, mock := newMockRepo(t)

	// reject_reason, rejected_at, reviewed_by, status, updated_at
	mock.ExpectBegin()
	mock.ExpectExec(transitionSQL).
		WithArgs("blurry", reviewedAt, "admin-2", "rejected", sqlmock.AnyArg(), "p-1", "completed").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	ok, err := repo.Transition(context.Background(), "p-1", model.StatusCompleted, model.StatusRejected,
		model.Review{ReviewerID: "admin-2", Reason: "blurry", At: reviewedAt})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkSettledOnlyOnce(t *testing.T) {
	repo, mock := newMockRepo(t)
	query := `UPDATE "mission_participations" SET "settled_at"=\$1,"updated_at"=\$2 WHERE \(id = \$3 AND status = \$4 AND settled_at IS NULL\)`

	mock.ExpectBegin()
	mock.ExpectExec(query).
		WithArgs(reviewedAt, sqlmock.AnyArg(), "p-1", "verified").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectExec(query).
		WithArgs(reviewedAt, sqlmock.AnyArg(), "p-1", "verified").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	ok, err := repo.MarkSettled(context.Background(), "p-1", reviewedAt)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.MarkSettled(context.Background(), "p-1", reviewedAt)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListVerifiedUnsettledFiltersOnMarker(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`SELECT \* FROM "mission_participations" WHERE \(status = \$1 AND settled_at IS NULL\) AND "mission_participations"."deleted_at" IS NULL ORDER BY verified_at ASC LIMIT`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "status"}).
			AddRow("p-1", "u-1", "verified").
			AddRow("p-2", "u-2", "verified"))

	list, err := repo.ListVerifiedUnsettled(context.Background(), 50)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "p-1", list[0].ID)
	assert.Equal(t, model.StatusVerified, list[1].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}
