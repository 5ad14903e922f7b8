package postgres_test

import (
	"context"
	"database/sql"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"pulsefeed/internal/domain/entity"
	pg "pulsefeed/internal/infra/adapter/persistence/postgres"
)

var categoryCols = []string{"id", "name", "display_name", "color", "description"}

func TestCategoryRepo_Get_Found(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT")).WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows(categoryCols).AddRow(int64(1), "tech", "Tech", "#fff", "desc"))

	repo := pg.NewCategoryRepo(db)
	got, err := repo.Get(context.Background(), 1)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Name != "tech" {
		t.Fatalf("unexpected category: %+v", got)
	}
}

func TestCategoryRepo_GetByName_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT")).WithArgs("missing").WillReturnError(sql.ErrNoRows)

	repo := pg.NewCategoryRepo(db)
	got, err := repo.GetByName(context.Background(), "missing")
	if err != nil {
		t.Fatalf("GetByName: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil, got %+v", got)
	}
}

func TestCategoryRepo_ListWithCounts(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("LEFT JOIN article_categories")).
		WillReturnRows(sqlmock.NewRows(append(categoryCols, "count")).AddRow(int64(1), "tech", "Tech", "#fff", "desc", int64(3)))

	repo := pg.NewCategoryRepo(db)
	got, err := repo.ListWithCounts(context.Background())
	if err != nil {
		t.Fatalf("ListWithCounts: %v", err)
	}
	if len(got) != 1 || got[0].Count != 3 {
		t.Fatalf("unexpected result: %+v", got)
	}
}

func TestCategoryRepo_SetArticleCategories(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM article_categories")).WithArgs(int64(1)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO article_categories")).WithArgs(int64(1), int64(2), 0.9).WillReturnResult(sqlmock.NewResult(1, 1))

	repo := pg.NewCategoryRepo(db)
	err = repo.SetArticleCategories(context.Background(), 1, []entity.ArticleCategory{{ArticleID: 1, CategoryID: 2, Confidence: 0.9}})
	if err != nil {
		t.Fatalf("SetArticleCategories: %v", err)
	}
}

func TestCategoryRepo_UpsertUnmapped(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO category_mapping")).WithArgs("weird-label").WillReturnResult(sqlmock.NewResult(1, 1))

	repo := pg.NewCategoryRepo(db)
	if err := repo.UpsertUnmapped(context.Background(), "weird-label"); err != nil {
		t.Fatalf("UpsertUnmapped: %v", err)
	}
}
