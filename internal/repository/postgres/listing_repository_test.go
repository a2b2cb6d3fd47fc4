package postgres_test

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/honeynil/p2p-marketplace/internal/models"
	"github.com/honeynil/p2p-marketplace/internal/repository/postgres"
	pkgerrors "github.com/honeynil/p2p-marketplace/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListingRepository_Create(t *testing.T) {
	db, mock := newMock(t)
	repo := postgres.NewListingRepository(db)
	ctx := context.Background()

	t.Run("NilListing", func(t *testing.T) {
		err := repo.Create(ctx, nil)
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidArgument)
	})

	t.Run("Success", func(t *testing.T) {
		l := &models.Listing{ID: "l1", SellerID: "s1", Title: "Road bike", Description: "Carbon", Price: 120000, Category: "bikes", Condition: models.ConditionGood, Status: models.ListingActive}
		mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO listings (id, seller_id, title, description, price, category, condition, images, status)`)).
			WithArgs("l1", "s1", "Road bike", "Carbon", int64(120000), "bikes", models.ConditionGood, sqlmock.AnyArg(), models.ListingActive).
			WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

		require.NoError(t, repo.Create(ctx, l))
		assert.Equal(t, now, l.CreatedAt)
		assert.Equal(t, []string{}, l.Images)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("DBError", func(t *testing.T) {
		l := &models.Listing{ID: "l2", SellerID: "s1"}
		mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO listings`)).WillReturnError(errors.New("db error"))

		err := repo.Create(ctx, l)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to create listing")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestListingRepository_GetByID(t *testing.T) {
	db, mock := newMock(t)
	repo := postgres.NewListingRepository(db)
	ctx := context.Background()
	query := regexp.QuoteMeta(`SELECT l.id, l.seller_id`) + `.*` + regexp.QuoteMeta(`FROM listings l LEFT JOIN users u ON u.id = l.seller_id WHERE l.id = $1`)

	t.Run("Success", func(t *testing.T) {
		mock.ExpectQuery(query).WithArgs("l1").
			WillReturnRows(sqlmock.NewRows(cols(listingCols, userCols)).
				AddRow(toDriver(row(listingValues("l1", "ACTIVE"), userValues("s1", "sam")))...))

		l, err := repo.GetByID(ctx, "l1")
		require.NoError(t, err)
		assert.Equal(t, "Road bike", l.Title)
		assert.Equal(t, models.ConditionGood, l.Condition)
		assert.Equal(t, []string{"a.jpg", "b.jpg"}, l.Images)
		require.NotNil(t, l.Seller)
		assert.Equal(t, "sam", l.Seller.Name)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("UnknownSeller", func(t *testing.T) {
		mock.ExpectQuery(query).WithArgs("l1").
			WillReturnRows(sqlmock.NewRows(cols(listingCols, userCols)).
				AddRow(toDriver(row(listingValues("l1", "ACTIVE"), []any{"", "", ""}))...))

		l, err := repo.GetByID(ctx, "l1")
		require.NoError(t, err)
		assert.Nil(t, l.Seller)
	})

	t.Run("NotFound", func(t *testing.T) {
		mock.ExpectQuery(query).WithArgs("missing").WillReturnError(sql.ErrNoRows)

		_, err := repo.GetByID(ctx, "missing")
		assert.ErrorIs(t, err, pkgerrors.ErrListingNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestListingRepository_List(t *testing.T) {
	db, mock := newMock(t)
	repo := postgres.NewListingRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`WHERE l.status = $1 AND l.category = $2 ORDER BY l.price ASC, l.id ASC LIMIT $3`)).
		WithArgs(models.ListingActive, "bikes", 10).
		WillReturnRows(sqlmock.NewRows(cols(listingCols, userCols)).
			AddRow(toDriver(row(listingValues("l1", "ACTIVE"), userValues("s1", "sam")))...).
			AddRow(toDriver(row(listingValues("l2", "ACTIVE"), userValues("s1", "sam")))...))

	got, err := repo.List(context.Background(), models.ListingFilter{Status: models.ListingActive, Category: "bikes", Sort: models.SortPriceAsc})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "l2", got[1].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListingRepository_Update(t *testing.T) {
	db, mock := newMock(t)
	repo := postgres.NewListingRepository(db)
	ctx := context.Background()
	query := regexp.QuoteMeta(`UPDATE listings SET title = $2`)
	l := &models.Listing{ID: "l1", Title: "Road bike", Description: "Carbon", Price: 99000, Category: "bikes", Condition: models.ConditionGood, Status: models.ListingActive}

	t.Run("Success", func(t *testing.T) {
		mock.ExpectQuery(query).
			WithArgs("l1", "Road bike", "Carbon", int64(99000), "bikes", models.ConditionGood, sqlmock.AnyArg(), models.ListingActive).
			WillReturnRows(sqlmock.NewRows([]string{"updated_at"}).AddRow(now))

		require.NoError(t, repo.Update(ctx, l))
		assert.Equal(t, now, l.UpdatedAt)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("SoldMeanwhile", func(t *testing.T) {
		mock.ExpectQuery(query).WillReturnError(sql.ErrNoRows)
		mock.ExpectQuery(existsQuery).WithArgs("l1").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

		err := repo.Update(ctx, l)
		assert.ErrorIs(t, err, pkgerrors.ErrListingSold)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Gone", func(t *testing.T) {
		mock.ExpectQuery(query).WillReturnError(sql.ErrNoRows)
		mock.ExpectQuery(existsQuery).WithArgs("l1").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

		err := repo.Update(ctx, l)
		assert.ErrorIs(t, err, pkgerrors.ErrListingNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

var existsQuery = regexp.QuoteMeta(`SELECT EXISTS (SELECT 1 FROM listings WHERE id = $1)`)

func TestListingRepository_Delete(t *testing.T) {
	db, mock := newMock(t)
	repo := postgres.NewListingRepository(db)
	ctx := context.Background()
	query := regexp.QuoteMeta(`DELETE FROM listings WHERE id = $1 AND status <> 'SOLD'`)

	t.Run("Success", func(t *testing.T) {
		mock.ExpectExec(query).WithArgs("l1").WillReturnResult(sqlmock.NewResult(0, 1))
		assert.NoError(t, repo.Delete(ctx, "l1"))
	})

	t.Run("Sold", func(t *testing.T) {
		mock.ExpectExec(query).WithArgs("l1").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(existsQuery).WithArgs("l1").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
		assert.ErrorIs(t, repo.Delete(ctx, "l1"), pkgerrors.ErrListingSold)
	})

	t.Run("Gone", func(t *testing.T) {
		mock.ExpectExec(query).WithArgs("gone").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(existsQuery).WithArgs("gone").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
		assert.ErrorIs(t, repo.Delete(ctx, "gone"), pkgerrors.ErrListingNotFound)
	})

	t.Run("DBError", func(t *testing.T) {
		mock.ExpectExec(query).WithArgs("l1").WillReturnError(errors.New("db error"))
		err := repo.Delete(ctx, "l1")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to delete listing")
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}
