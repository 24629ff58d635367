package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/conveyorhq/conveyor/internal/domain"
)

// Run — одна запись журнала: выполнение одного DAG проекта.
type Run struct {
	// ID — идентификатор выполнения.
	ID uuid.UUID

	// Project — имя проекта.
	Project string

	// Items — имена элементов DAG.
	Items []string

	// State — итоговое состояние выполнения.
	State domain.DagState

	// Remote — выполнялось ли на удалённом сервере.
	Remote bool

	StartedAt  time.Time
	FinishedAt *time.Time

	// Error — текст ошибки для отказавших выполнений.
	Error string
}

// ItemEvent — завершение выполнения одного элемента.
type ItemEvent struct {
	RunID      uuid.UUID
	Item       string
	FilterID   string
	State      domain.ItemState
	FinishedAt time.Time
}

// Store — репозиторий журнала выполнений.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore создаёт репозиторий над пулом соединений.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// CreateRun записывает начало выполнения.
func (s *Store) CreateRun(ctx context.Context, run *Run) error {
	itemsJSON, err := json.Marshal(run.Items)
	if err != nil {
		return fmt.Errorf("marshal items: %w", err)
	}

	query := `
		INSERT INTO runs (id, project, items, state, remote, started_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = s.pool.Exec(ctx, query,
		run.ID,
		run.Project,
		itemsJSON,
		string(run.State),
		run.Remote,
		run.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// FinishRun записывает терминальное состояние выполнения.
func (s *Store) FinishRun(ctx context.Context, id uuid.UUID, state domain.DagState, errText string) error {
	query := `
		UPDATE runs
		SET state = $2, finished_at = $3, error = $4
		WHERE id = $1
	`
	result, err := s.pool.Exec(ctx, query,
		id,
		string(state),
		time.Now().UTC(),
		nullString(errText),
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordItemFinished записывает завершение элемента.
func (s *Store) RecordItemFinished(ctx context.Context, ev *ItemEvent) error {
	query := `
		INSERT INTO item_events (run_id, item, filter_id, state, finished_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := s.pool.Exec(ctx, query,
		ev.RunID,
		ev.Item,
		nullString(ev.FilterID),
		string(ev.State),
		ev.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("insert item event: %w", err)
	}
	return nil
}

// GetRun возвращает выполнение по идентификатору.
func (s *Store) GetRun(ctx context.Context, id uuid.UUID) (*Run, error) {
	query := `
		SELECT id, project, items, state, remote, started_at, finished_at, error
		FROM runs
		WHERE id = $1
	`
	return scanRun(s.pool.QueryRow(ctx, query, id))
}

// Filter — параметры выборки выполнений.
type Filter struct {
	// Project — фильтр по имени проекта; пустая строка — все проекты.
	Project string

	// State — фильтр по состоянию; пустая строка — все состояния.
	State domain.DagState

	Limit  int
	Offset int
}

// ListRuns возвращает выполнения, новые первыми.
func (s *Store) ListRuns(ctx context.Context, filter Filter) ([]Run, error) {
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	query := `
		SELECT id, project, items, state, remote, started_at, finished_at, error
		FROM runs
		WHERE ($1::text IS NULL OR project = $1)
		  AND ($2::text IS NULL OR state = $2)
		ORDER BY started_at DESC
		LIMIT $3 OFFSET $4
	`
	rows, err := s.pool.Query(ctx, query,
		nullString(filter.Project),
		nullString(string(filter.State)),
		filter.Limit,
		filter.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// ListItemEvents возвращает завершения элементов одного выполнения.
func (s *Store) ListItemEvents(ctx context.Context, runID uuid.UUID) ([]ItemEvent, error) {
	query := `
		SELECT run_id, item, filter_id, state, finished_at
		FROM item_events
		WHERE run_id = $1
		ORDER BY finished_at ASC
	`
	rows, err := s.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("list item events: %w", err)
	}
	defer rows.Close()

	var events []ItemEvent
	for rows.Next() {
		var ev ItemEvent
		var filterID *string
		var state string
		if err := rows.Scan(&ev.RunID, &ev.Item, &filterID, &state, &ev.FinishedAt); err != nil {
			return nil, fmt.Errorf("scan item event: %w", err)
		}
		if filterID != nil {
			ev.FilterID = *filterID
		}
		ev.State = domain.ItemState(state)
		events = append(events, ev)
	}
	return events, rows.Err()
}

// scanRun сканирует одну строку в Run.
func scanRun(row pgx.Row) (*Run, error) {
	var run Run
	var itemsJSON []byte
	var state string
	var errText *string

	err := row.Scan(
		&run.ID,
		&run.Project,
		&itemsJSON,
		&state,
		&run.Remote,
		&run.StartedAt,
		&run.FinishedAt,
		&errText,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan run: %w", err)
	}

	run.State = domain.DagState(state)
	if itemsJSON != nil {
		if err := json.Unmarshal(itemsJSON, &run.Items); err != nil {
			return nil, fmt.Errorf("unmarshal items: %w", err)
		}
	}
	if errText != nil {
		run.Error = *errText
	}
	return &run, nil
}

// nullString возвращает nil для пустой строки (NULL в базе).
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
