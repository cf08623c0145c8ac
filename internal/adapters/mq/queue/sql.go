package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the pgx database/sql driver
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/okian/aqsync/internal/domain/model"
)

var _ Store = (*SQLStore)(nil)

// SQLStore keeps events in a sqlite file or a Postgres database.
type SQLStore struct {
	db  *sql.DB
	d   dialect
	cfg settings
}

// Open returns the Store for driver: memory, sqlite or postgres.
func Open(ctx context.Context, driver, dsn string, opts ...Option) (Store, error) {
	switch driver {
	case "memory":
		return NewMemoryStore(opts...), nil
	case "sqlite":
		return NewSQLiteStore(ctx, dsn, opts...)
	case "postgres":
		return NewPostgresStore(ctx, dsn, opts...)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
}

// NewSQLiteStore opens (and creates) the sqlite database at path.
func NewSQLiteStore(ctx context.Context, path string, opts ...Option) (*SQLStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating job store directory: %w", err)
		}
	}
	db, err := sql.Open(sqliteDialect.driver, "file:"+path+"?_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("opening sqlite job store: %w", err)
	}
	// One writer at a time keeps sqlite away from SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("applying %q: %w", pragma, err)
		}
	}
	return newSQLStore(ctx, db, sqliteDialect, opts)
}

// NewPostgresStore connects to the Postgres database at dsn.
func NewPostgresStore(ctx context.Context, dsn string, opts ...Option) (*SQLStore, error) {
	db, err := sql.Open(postgresDialect.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening postgres job store: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)
	return newSQLStore(ctx, db, postgresDialect, opts)
}

func newSQLStore(ctx context.Context, db *sql.DB, d dialect, opts []Option) (*SQLStore, error) {
	cfg := defaultSettings()
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging %s job store: %w", d.name, err)
	}
	for _, stmt := range strings.Split(d.schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("creating %s job store schema: %w", d.name, err)
		}
	}
	return &SQLStore{db: db, d: d, cfg: cfg}, nil
}

const eventColumns = `id, hash, topic, sender, project, user_name, description, status, retries, depends_on, summary, payload, created_ns, updated_ns`

type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(row scanner) (*model.Event, error) {
	var (
		e                  model.Event
		status             string
		summary, payload   string
		createdNs, updated int64
	)
	err := row.Scan(&e.ID, &e.Hash, &e.Topic, &e.Sender, &e.Project, &e.User, &e.Description,
		&status, &e.Retries, &e.DependsOn, &summary, &payload, &createdNs, &updated)
	if err != nil {
		return nil, err
	}
	e.Status = model.JobStatus(status)
	if summary != "" && summary != "{}" {
		if err := json.Unmarshal([]byte(summary), &e.Summary); err != nil {
			return nil, fmt.Errorf("decoding summary of %s: %w", e.ID, err)
		}
	}
	if payload != "" {
		e.Payload = json.RawMessage(payload)
	}
	e.CreatedAt = time.Unix(0, createdNs).UTC()
	e.UpdatedAt = time.Unix(0, updated).UTC()
	return &e, nil
}

func encodeSummary(summary map[string]any) (string, error) {
	if len(summary) == 0 {
		return "{}", nil
	}
	raw, err := json.Marshal(summary)
	if err != nil {
		return "", fmt.Errorf("encoding summary: %w", err)
	}
	return string(raw), nil
}

func (s *SQLStore) q(query string) string { return s.d.rebind(query) }

func (s *SQLStore) insert(ctx context.Context, ex interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
}, e *model.Event) error {
	summary, err := encodeSummary(e.Summary)
	if err != nil {
		return err
	}
	_, err = ex.ExecContext(ctx, s.q(`INSERT INTO events (`+eventColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		e.ID, e.Hash, e.Topic, e.Sender, e.Project, e.User, e.Description, string(e.Status), e.Retries,
		e.DependsOn, summary, string(e.Payload), e.CreatedAt.UnixNano(), e.UpdatedAt.UnixNano())
	return err
}

func (s *SQLStore) Dispatch(ctx context.Context, req DispatchRequest) (string, error) {
	payload, err := encodePayload(req.Payload)
	if err != nil {
		return "", fmt.Errorf("encoding payload: %w", err)
	}
	if existing, err := s.FindByHash(ctx, req.Hash); err != nil {
		return "", err
	} else if existing != nil {
		return "", fmt.Errorf("dispatching %s: %w", req.Hash, ErrDuplicateHash)
	}
	status := req.Status
	if status == "" {
		status = model.StatusFinished
	}
	now := s.cfg.now()
	e := &model.Event{
		ID:          uuid.NewString(),
		Hash:        req.Hash,
		Topic:       req.Topic,
		Sender:      req.Sender,
		Project:     req.Project,
		User:        req.User,
		Description: req.Description,
		Status:      status,
		Summary:     req.Summary,
		Payload:     payload,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.insert(ctx, s.db, e); err != nil {
		// Lost a race on the unique hash.
		if existing, findErr := s.FindByHash(ctx, req.Hash); findErr == nil && existing != nil {
			return "", fmt.Errorf("dispatching %s: %w", req.Hash, ErrDuplicateHash)
		}
		return "", fmt.Errorf("inserting event: %w", err)
	}
	return e.ID, nil
}

func (s *SQLStore) Enroll(ctx context.Context, req EnrollRequest) (*model.Event, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning enroll: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if req.Sequential {
		var busy int
		err := tx.QueryRowContext(ctx, s.q(`SELECT COUNT(*) FROM events WHERE topic = ? AND status IN (?, ?)`),
			req.Target, string(model.StatusPending), string(model.StatusInProgress)).Scan(&busy)
		if err != nil {
			return nil, fmt.Errorf("checking running jobs: %w", err)
		}
		if busy > 0 {
			return nil, nil
		}
	}

	var (
		srcID, srcProject, srcUser, srcDescription string
		jobID                                      sql.NullString
	)
	err = tx.QueryRowContext(ctx, s.q(`
SELECT s.id, s.project, s.user_name, s.description, j.id
FROM events s
LEFT JOIN events j ON j.depends_on = s.id AND j.topic = ?
WHERE s.topic = ? AND (j.id IS NULL OR j.status = ?)
ORDER BY s.seq
LIMIT 1`), req.Target, req.Source, string(model.StatusRestarted)).
		Scan(&srcID, &srcProject, &srcUser, &srcDescription, &jobID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding enrollable event: %w", err)
	}

	now := s.cfg.now()
	if jobID.Valid {
		_, err = tx.ExecContext(ctx, s.q(`UPDATE events SET status = ?, sender = ?, updated_ns = ? WHERE id = ?`),
			string(model.StatusPending), req.Sender, now.UnixNano(), jobID.String)
		if err != nil {
			return nil, fmt.Errorf("re-enrolling job: %w", err)
		}
	} else {
		job := &model.Event{
			ID:          uuid.NewString(),
			Hash:        JobHash(req.Target, srcID),
			Topic:       req.Target,
			Sender:      req.Sender,
			Project:     srcProject,
			User:        srcUser,
			Description: srcDescription,
			Status:      model.StatusPending,
			DependsOn:   srcID,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := s.insert(ctx, tx, job); err != nil {
			return nil, fmt.Errorf("inserting job: %w", err)
		}
		jobID = sql.NullString{String: job.ID, Valid: true}
	}

	job, err := scanEvent(tx.QueryRowContext(ctx, s.q(`SELECT `+eventColumns+` FROM events WHERE id = ?`), jobID.String))
	if err != nil {
		return nil, fmt.Errorf("reading enrolled job: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing enroll: %w", err)
	}
	return job, nil
}

func (s *SQLStore) Get(ctx context.Context, id string) (*model.Event, error) {
	e, err := scanEvent(s.db.QueryRowContext(ctx, s.q(`SELECT `+eventColumns+` FROM events WHERE id = ?`), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("event %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("reading event %s: %w", id, err)
	}
	return e, nil
}

func (s *SQLStore) Update(ctx context.Context, id string, mutate func(*model.Event)) (*model.Event, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning update: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	current, err := scanEvent(tx.QueryRowContext(ctx, s.q(`SELECT `+eventColumns+` FROM events WHERE id = ?`+s.d.forUpdate), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("event %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("reading event %s: %w", id, err)
	}
	next := *current
	mutate(&next)
	next.ID, next.Hash, next.Topic, next.CreatedAt = current.ID, current.Hash, current.Topic, current.CreatedAt
	next.UpdatedAt = s.cfg.now()

	summary, err := encodeSummary(next.Summary)
	if err != nil {
		return nil, err
	}
	_, err = tx.ExecContext(ctx, s.q(`
UPDATE events SET sender = ?, project = ?, user_name = ?, description = ?, status = ?, retries = ?,
    depends_on = ?, summary = ?, payload = ?, updated_ns = ?
WHERE id = ?`),
		next.Sender, next.Project, next.User, next.Description, string(next.Status), next.Retries,
		next.DependsOn, summary, string(next.Payload), next.UpdatedAt.UnixNano(), id)
	if err != nil {
		return nil, fmt.Errorf("updating event %s: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing update: %w", err)
	}
	return &next, nil
}

func (s *SQLStore) FindByHash(ctx context.Context, hash string) (*model.Event, error) {
	e, err := scanEvent(s.db.QueryRowContext(ctx, s.q(`SELECT `+eventColumns+` FROM events WHERE hash = ?`), hash))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding event by hash: %w", err)
	}
	return e, nil
}

func (s *SQLStore) Restart(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, s.q(`UPDATE events SET status = ?, retries = 0, updated_ns = ? WHERE id = ? OR depends_on = ?`),
		string(model.StatusRestarted), s.cfg.now().UnixNano(), id, id)
	if err != nil {
		return fmt.Errorf("restarting event %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("event %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *SQLStore) Recover(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, s.q(`
UPDATE events SET status = ?, retries = retries + 1, updated_ns = ?
WHERE depends_on <> '' AND status IN (?, ?)`),
		string(model.StatusRestarted), s.cfg.now().UnixNano(), string(model.StatusPending), string(model.StatusInProgress))
	if err != nil {
		return 0, fmt.Errorf("recovering jobs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting recovered jobs: %w", err)
	}
	return int(n), nil
}

func (s *SQLStore) List(ctx context.Context, filter ListFilter) ([]model.Event, error) {
	var (
		where []string
		args  []any
	)
	if filter.Topic != "" {
		where = append(where, "topic = ?")
		args = append(args, filter.Topic)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}
	query := `SELECT ` + eventColumns + ` FROM events`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY seq DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}
	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("listing events: %w", err)
	}
	defer rows.Close()

	var out []model.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		out = append(out, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating events: %w", err)
	}
	return out, nil
}

func (s *SQLStore) View(ctx context.Context, id string) (*model.EventView, error) {
	e, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	view := &model.EventView{ID: e.ID, ProjectName: e.Project, Summary: e.Summary}
	var status string
	err = s.db.QueryRowContext(ctx, s.q(`SELECT status FROM events WHERE depends_on = ? ORDER BY seq DESC LIMIT 1`), id).Scan(&status)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, fmt.Errorf("reading job of %s: %w", id, err)
	default:
		view.Status = model.JobStatus(status)
	}
	return view, nil
}

func (s *SQLStore) Counts(ctx context.Context, topic string) (map[model.JobStatus]int, error) {
	query := `SELECT status, COUNT(*) FROM events`
	var args []any
	if topic != "" {
		query += ` WHERE topic = ?`
		args = append(args, topic)
	}
	query += ` GROUP BY status`
	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("counting events: %w", err)
	}
	defer rows.Close()

	counts := make(map[model.JobStatus]int, len(model.Statuses))
	for _, st := range model.Statuses {
		counts[st] = 0
	}
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scanning count: %w", err)
		}
		counts[model.JobStatus(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating counts: %w", err)
	}
	return counts, nil
}

func (s *SQLStore) Close() error {
	if s.d.name == sqliteDialect.name {
		_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	}
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("closing %s job store: %w", s.d.name, err)
	}
	return nil
}
