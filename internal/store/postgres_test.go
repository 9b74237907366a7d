package store

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/Bhaumik-99/research-agents/internal/report"
	"github.com/lib/pq"
)

func newMock(t *testing.T) (*Postgres, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return &Postgres{DB: db}, mock
}

func TestPostgresCreateRun(t *testing.T) {
	st, mock := newMock(t)
	created := time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC)
	query := regexp.QuoteMeta(`
INSERT INTO research_runs (id, topic, pipeline, status, progress, created_at)
VALUES ($1,$2,$3,$4,$5,$6)`)
	mock.ExpectExec(query).
		WithArgs("run-1", "fusion energy", "team", StatusPending, 0, created).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := st.CreateRun(context.Background(), Run{ID: "run-1", Topic: "fusion energy", Pipeline: "team", Status: StatusPending, CreatedAt: created}); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPostgresCreateRunDuplicate(t *testing.T) {
	st, mock := newMock(t)
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO research_runs`)).
		WillReturnError(&pq.Error{Code: "23505"})

	err := st.CreateRun(context.Background(), Run{ID: "run-1"})
	if !errors.Is(err, ErrRunExists) {
		t.Fatalf("expected ErrRunExists, got %v", err)
	}
}

func TestPostgresUpdateRunMissing(t *testing.T) {
	st, mock := newMock(t)
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE research_runs SET status=$2`)).
		WithArgs("ghost", StatusFailed, 10, sqlmock.AnyArg(), int64(0), 0.0, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := st.UpdateRun(context.Background(), Run{ID: "ghost", Status: StatusFailed, Progress: 10, Error: "boom"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPostgresGetRun(t *testing.T) {
	st, mock := newMock(t)
	created := time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC)
	finished := created.Add(time.Minute)
	rows := sqlmock.NewRows([]string{"id", "topic", "pipeline", "status", "progress", "error", "tokens_used", "cost_usd", "created_at", "started_at", "finished_at"}).
		AddRow("run-1", "fusion energy", "team", StatusCompleted, 100, nil, int64(900), 0.01, created, created, finished)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT ` + runColumns + ` FROM research_runs WHERE id=$1`)).
		WithArgs("run-1").
		WillReturnRows(rows)

	r, err := st.GetRun(context.Background(), "run-1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if r.Status != StatusCompleted || r.TokensUsed != 900 || r.Error != "" {
		t.Fatalf("unexpected run %+v", r)
	}
	if r.FinishedAt == nil || !r.FinishedAt.Equal(finished) {
		t.Fatalf("unexpected finished_at %v", r.FinishedAt)
	}
}

func TestPostgresGetRunNotFound(t *testing.T) {
	st, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta(`FROM research_runs WHERE id=$1`)).
		WithArgs("nope").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	if _, err := st.GetRun(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPostgresReportRoundTrip(t *testing.T) {
	st, mock := newMock(t)
	rep := report.Report{ID: "run-1", Topic: "fusion energy", Pipeline: "team", Results: map[string]string{"synthesis": "done"}}
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE research_runs SET report=$2 WHERE id=$1`)).
		WithArgs("run-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT report FROM research_runs WHERE id=$1`)).
		WithArgs("run-1").
		WillReturnRows(sqlmock.NewRows([]string{"report"}).AddRow([]byte(`{"topic":"fusion energy","results":{"synthesis":"done"},"timestamp":"2026-04-02T09:00:00Z","usage":{"tokens":0,"cost_usd":0},"duration_ms":0}`)))

	ctx := context.Background()
	if err := st.SaveReport(ctx, "run-1", rep); err != nil {
		t.Fatalf("SaveReport: %v", err)
	}
	got, err := st.GetReport(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetReport: %v", err)
	}
	if got.Topic != "fusion energy" || got.Results["synthesis"] != "done" {
		t.Fatalf("unexpected report %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPostgresListRunsUsesDefaultLimit(t *testing.T) {
	st, mock := newMock(t)
	created := time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "topic", "pipeline", "status", "progress", "error", "tokens_used", "cost_usd", "created_at", "started_at", "finished_at"}).
		AddRow("run-2", "b", "decompose", StatusRunning, 40, nil, int64(0), 0.0, created.Add(time.Second), created, nil).
		AddRow("run-1", "a", "team", StatusFailed, 20, "timeout", int64(0), 0.0, created, nil, nil)
	mock.ExpectQuery(regexp.QuoteMeta(`ORDER BY created_at DESC LIMIT $1`)).
		WithArgs(defaultListLimit).
		WillReturnRows(rows)

	runs, err := st.ListRuns(context.Background(), 0)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "run-2" || runs[1].Error != "timeout" {
		t.Fatalf("unexpected runs %+v", runs)
	}
	if runs[0].FinishedAt != nil {
		t.Fatalf("expected nil finished_at")
	}
}
