package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Bhaumik-99/research-agents/config"
	"github.com/Bhaumik-99/research-agents/internal/report"
	"github.com/lib/pq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
)

// Postgres stores runs in the research_runs table.
type Postgres struct {
	DB *sql.DB
}

var (
	metricsOnce    sync.Once
	costCounter    otelmetric.Float64Counter
	tokenCounter   otelmetric.Int64Counter
	metricsInitErr error
)

func initStoreMetrics() {
	meter := otel.Meter("store")
	var err error
	costCounter, err = meter.Float64Counter("research_report_cost_total")
	if err != nil {
		metricsInitErr = err
		return
	}
	tokenCounter, err = meter.Int64Counter("research_report_tokens_total")
	if err != nil {
		metricsInitErr = err
	}
}

// NewPostgres opens and pings the database described by cfg.
func NewPostgres(ctx context.Context, cfg config.PostgresConfig) (*Postgres, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, err
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Postgres{DB: db}, nil
}

func (s *Postgres) Close() error { return s.DB.Close() }

func (s *Postgres) CreateRun(ctx context.Context, run Run) error {
	if run.ID == "" {
		return fmt.Errorf("run id must be provided")
	}
	_, err := s.DB.ExecContext(ctx, `
INSERT INTO research_runs (id, topic, pipeline, status, progress, created_at)
VALUES ($1,$2,$3,$4,$5,$6)`, run.ID, run.Topic, run.Pipeline, run.Status, run.Progress, run.CreatedAt)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return fmt.Errorf("%w: %s", ErrRunExists, run.ID)
	}
	return err
}

func (s *Postgres) UpdateRun(ctx context.Context, run Run) error {
	res, err := s.DB.ExecContext(ctx, `
UPDATE research_runs SET status=$2, progress=$3, error=$4, tokens_used=$5, cost_usd=$6, started_at=$7, finished_at=$8
WHERE id=$1`, run.ID, run.Status, run.Progress, nullString(run.Error), run.TokensUsed, run.CostUSD, run.StartedAt, run.FinishedAt)
	if err != nil {
		return err
	}
	return expectOne(res, run.ID)
}

// SaveReport attaches the finished report to its run.
func (s *Postgres) SaveReport(ctx context.Context, runID string, rep report.Report) error {
	doc, err := json.Marshal(rep)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	res, err := s.DB.ExecContext(ctx, `UPDATE research_runs SET report=$2 WHERE id=$1`, runID, doc)
	if err != nil {
		return err
	}
	if err := expectOne(res, runID); err != nil {
		return err
	}
	metricsOnce.Do(initStoreMetrics)
	if metricsInitErr == nil {
		attrs := otelmetric.WithAttributes(attribute.String("pipeline", rep.Pipeline))
		if rep.Usage.CostUSD > 0 {
			costCounter.Add(ctx, rep.Usage.CostUSD, attrs)
		}
		if rep.Usage.Tokens > 0 {
			tokenCounter.Add(ctx, rep.Usage.Tokens, attrs)
		}
	}
	return nil
}

const runColumns = `id, topic, pipeline, status, progress, error, tokens_used, cost_usd, created_at, started_at, finished_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (Run, error) {
	var r Run
	var errMsg sql.NullString
	if err := row.Scan(&r.ID, &r.Topic, &r.Pipeline, &r.Status, &r.Progress, &errMsg, &r.TokensUsed, &r.CostUSD, &r.CreatedAt, &r.StartedAt, &r.FinishedAt); err != nil {
		return Run{}, err
	}
	r.Error = errMsg.String
	return r, nil
}

func (s *Postgres) GetRun(ctx context.Context, id string) (Run, error) {
	r, err := scanRun(s.DB.QueryRowContext(ctx, `SELECT `+runColumns+` FROM research_runs WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	return r, err
}

func (s *Postgres) GetReport(ctx context.Context, runID string) (report.Report, error) {
	var doc []byte
	err := s.DB.QueryRowContext(ctx, `SELECT report FROM research_runs WHERE id=$1`, runID).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && len(doc) == 0) {
		return report.Report{}, fmt.Errorf("report %s: %w", runID, ErrNotFound)
	}
	if err != nil {
		return report.Report{}, err
	}
	var rep report.Report
	if err := json.Unmarshal(doc, &rep); err != nil {
		return report.Report{}, fmt.Errorf("decode report %s: %w", runID, err)
	}
	return rep, nil
}

// ListRuns returns the newest runs first.
func (s *Postgres) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT `+runColumns+` FROM research_runs ORDER BY created_at DESC LIMIT $1`, listLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func expectOne(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
