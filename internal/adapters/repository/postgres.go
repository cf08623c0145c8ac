package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/okian/aqsync/internal/domain/model"
)

var _ Store = (*PostgresStore)(nil)

// PostgresStore reads and writes the AYON database directly. Projects and
// users live in the public schema, folders and tasks in project_<name>.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to dsn and makes sure the public tables exist.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("creating postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	s := &PostgresStore{pool: pool}
	if _, err := pool.Exec(ctx, publicSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating public tables: %w", err)
	}
	return s, nil
}

const publicSchema = `
CREATE TABLE IF NOT EXISTS public.projects (
    name TEXT PRIMARY KEY,
    code TEXT NOT NULL UNIQUE,
    library BOOLEAN NOT NULL DEFAULT FALSE,
    attrib JSONB NOT NULL DEFAULT '{}'::JSONB,
    data JSONB NOT NULL DEFAULT '{}'::JSONB,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS public.users (
    name TEXT PRIMARY KEY,
    attrib JSONB NOT NULL DEFAULT '{}'::JSONB,
    data JSONB NOT NULL DEFAULT '{}'::JSONB
);
`

const projectSchema = `
CREATE SCHEMA IF NOT EXISTS %[1]s;
CREATE TABLE IF NOT EXISTS %[1]s.task_types (
    name TEXT PRIMARY KEY,
    position INTEGER NOT NULL DEFAULT 0,
    data JSONB NOT NULL DEFAULT '{}'::JSONB
);
CREATE TABLE IF NOT EXISTS %[1]s.statuses (
    name TEXT PRIMARY KEY,
    position INTEGER NOT NULL DEFAULT 0,
    data JSONB NOT NULL DEFAULT '{}'::JSONB
);
CREATE TABLE IF NOT EXISTS %[1]s.folders (
    id UUID PRIMARY KEY,
    name TEXT NOT NULL,
    label TEXT,
    folder_type TEXT,
    parent_id UUID REFERENCES %[1]s.folders(id),
    status TEXT,
    tags TEXT[] NOT NULL DEFAULT '{}',
    attrib JSONB NOT NULL DEFAULT '{}'::JSONB,
    data JSONB NOT NULL DEFAULT '{}'::JSONB,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS %[1]s.tasks (
    id UUID PRIMARY KEY,
    name TEXT NOT NULL,
    label TEXT,
    task_type TEXT,
    folder_id UUID NOT NULL REFERENCES %[1]s.folders(id),
    status TEXT,
    tags TEXT[] NOT NULL DEFAULT '{}',
    assignees TEXT[] NOT NULL DEFAULT '{}',
    attrib JSONB NOT NULL DEFAULT '{}'::JSONB,
    data JSONB NOT NULL DEFAULT '{}'::JSONB,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// entityData is the part of the data column of folders and tasks owned by
// the sync. Saves merge it into the stored data; other keys are kept.
type entityData struct {
	AquariumKey string   `json:"aquariumKey,omitempty"`
	OwnAttrib   []string `json:"ownAttrib"`
}

func table(project, name string) (string, error) {
	if err := ValidateProjectName(project); err != nil {
		return "", err
	}
	return pgx.Identifier{"project_" + project, name}.Sanitize(), nil
}

func (s *PostgresStore) GetProject(ctx context.Context, name string) (*model.Project, error) {
	var (
		p            model.Project
		attrib, data []byte
	)
	err := s.pool.QueryRow(ctx,
		`SELECT name, code, attrib, data FROM public.projects WHERE name = $1`, name,
	).Scan(&p.Name, &p.Code, &attrib, &data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting project %s: %w", name, err)
	}
	if err := json.Unmarshal(attrib, &p.Attrib); err != nil {
		return nil, fmt.Errorf("unmarshaling project attrib: %w", err)
	}
	var link struct {
		AquariumProjectKey string `json:"aquariumProjectKey"`
	}
	if err := json.Unmarshal(data, &link); err != nil {
		return nil, fmt.Errorf("unmarshaling project data: %w", err)
	}
	p.AquariumProjectKey = link.AquariumProjectKey

	if p.TaskTypes, err = s.taskTypes(ctx, name); err != nil {
		return nil, err
	}
	if p.Statuses, err = s.statuses(ctx, name); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *PostgresStore) taskTypes(ctx context.Context, project string) ([]model.TaskType, error) {
	tbl, err := table(project, "task_types")
	if err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, `SELECT name, data FROM `+tbl+` ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("listing task types: %w", err)
	}
	defer rows.Close()

	var out []model.TaskType
	for rows.Next() {
		var (
			tt   model.TaskType
			data []byte
		)
		if err := rows.Scan(&tt.Name, &data); err != nil {
			return nil, fmt.Errorf("scanning task type: %w", err)
		}
		if err := json.Unmarshal(data, &tt); err != nil {
			return nil, fmt.Errorf("unmarshaling task type: %w", err)
		}
		out = append(out, tt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating task type rows: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) statuses(ctx context.Context, project string) ([]model.Status, error) {
	tbl, err := table(project, "statuses")
	if err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, `SELECT name, data FROM `+tbl+` ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("listing statuses: %w", err)
	}
	defer rows.Close()

	var out []model.Status
	for rows.Next() {
		var (
			st   model.Status
			data []byte
		)
		if err := rows.Scan(&st.Name, &data); err != nil {
			return nil, fmt.Errorf("scanning status: %w", err)
		}
		if err := json.Unmarshal(data, &st); err != nil {
			return nil, fmt.Errorf("unmarshaling status: %w", err)
		}
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating status rows: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) FolderByKey(ctx context.Context, project, aquariumKey string) (*model.FolderEntity, error) {
	tbl, err := table(project, "folders")
	if err != nil {
		return nil, err
	}
	query := `
SELECT id::text, name, COALESCE(label, ''), COALESCE(folder_type, ''), COALESCE(parent_id::text, ''),
       COALESCE(status, ''), tags, attrib, data
FROM ` + tbl + `
WHERE data->>'aquariumKey' = $1
LIMIT 1`
	var (
		f            model.FolderEntity
		attrib, data []byte
	)
	err = s.pool.QueryRow(ctx, query, aquariumKey).Scan(
		&f.ID, &f.Name, &f.Label, &f.FolderType, &f.ParentID, &f.Status, &f.Tags, &attrib, &data,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting folder by aquarium key: %w", err)
	}
	ed, err := decodeEntity(attrib, data, &f.Attrib)
	if err != nil {
		return nil, err
	}
	f.Data = model.EntityData{AquariumKey: ed.AquariumKey}
	f.OwnAttrib = ed.OwnAttrib
	return &f, nil
}

func (s *PostgresStore) TaskByKey(ctx context.Context, project, aquariumKey string) (*model.TaskEntity, error) {
	tbl, err := table(project, "tasks")
	if err != nil {
		return nil, err
	}
	query := `
SELECT id::text, name, COALESCE(label, ''), COALESCE(task_type, ''), folder_id::text,
       COALESCE(status, ''), tags, assignees, attrib, data
FROM ` + tbl + `
WHERE data->>'aquariumKey' = $1
LIMIT 1`
	var (
		t            model.TaskEntity
		attrib, data []byte
	)
	err = s.pool.QueryRow(ctx, query, aquariumKey).Scan(
		&t.ID, &t.Name, &t.Label, &t.TaskType, &t.FolderID, &t.Status, &t.Tags, &t.Assignees, &attrib, &data,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting task by aquarium key: %w", err)
	}
	ed, err := decodeEntity(attrib, data, &t.Attrib)
	if err != nil {
		return nil, err
	}
	t.Data = model.EntityData{AquariumKey: ed.AquariumKey}
	t.OwnAttrib = ed.OwnAttrib
	return &t, nil
}

func decodeEntity(attrib, data []byte, into *map[string]any) (entityData, error) {
	var ed entityData
	if err := json.Unmarshal(attrib, into); err != nil {
		return ed, fmt.Errorf("unmarshaling attrib: %w", err)
	}
	if *into == nil {
		*into = map[string]any{}
	}
	if err := json.Unmarshal(data, &ed); err != nil {
		return ed, fmt.Errorf("unmarshaling data: %w", err)
	}
	return ed, nil
}

func (s *PostgresStore) SaveFolder(ctx context.Context, project string, f *model.FolderEntity) error {
	tbl, err := table(project, "folders")
	if err != nil {
		return err
	}
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	attrib, data, err := encodeEntity(f.Attrib, entityData{AquariumKey: f.Data.AquariumKey, OwnAttrib: f.OwnAttrib})
	if err != nil {
		return err
	}
	query := `
INSERT INTO ` + tbl + ` AS cur (id, name, label, folder_type, parent_id, status, tags, attrib, data)
VALUES ($1, $2, $3, $4, NULLIF($5, '')::uuid, NULLIF($6, ''), COALESCE($7, '{}'::text[]), $8, $9)
ON CONFLICT (id) DO UPDATE SET
    name = EXCLUDED.name,
    label = EXCLUDED.label,
    folder_type = EXCLUDED.folder_type,
    parent_id = EXCLUDED.parent_id,
    status = EXCLUDED.status,
    tags = EXCLUDED.tags,
    attrib = EXCLUDED.attrib,
    data = COALESCE(cur.data, '{}'::jsonb) || EXCLUDED.data,
    updated_at = now()
`
	if _, err := s.pool.Exec(ctx, query, f.ID, f.Name, f.Label, f.FolderType, f.ParentID, f.Status, f.Tags, attrib, data); err != nil {
		return fmt.Errorf("saving folder: %w", err)
	}
	return nil
}

func (s *PostgresStore) SaveTask(ctx context.Context, project string, t *model.TaskEntity) error {
	tbl, err := table(project, "tasks")
	if err != nil {
		return err
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	attrib, data, err := encodeEntity(t.Attrib, entityData{AquariumKey: t.Data.AquariumKey, OwnAttrib: t.OwnAttrib})
	if err != nil {
		return err
	}
	query := `
INSERT INTO ` + tbl + ` AS cur (id, name, label, task_type, folder_id, status, tags, assignees, attrib, data)
VALUES ($1, $2, $3, $4, $5::uuid, NULLIF($6, ''), COALESCE($7, '{}'::text[]), COALESCE($8, '{}'::text[]), $9, $10)
ON CONFLICT (id) DO UPDATE SET
    name = EXCLUDED.name,
    label = EXCLUDED.label,
    task_type = EXCLUDED.task_type,
    folder_id = EXCLUDED.folder_id,
    status = EXCLUDED.status,
    tags = EXCLUDED.tags,
    assignees = EXCLUDED.assignees,
    attrib = EXCLUDED.attrib,
    data = COALESCE(cur.data, '{}'::jsonb) || EXCLUDED.data,
    updated_at = now()
`
	if _, err := s.pool.Exec(ctx, query, t.ID, t.Name, t.Label, t.TaskType, t.FolderID, t.Status, t.Tags, t.Assignees, attrib, data); err != nil {
		return fmt.Errorf("saving task: %w", err)
	}
	return nil
}

func (s *PostgresStore) SetFolderKey(ctx context.Context, project, folderID, aquariumKey string) error {
	tbl, err := table(project, "folders")
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE `+tbl+` SET data = jsonb_set(data, '{aquariumKey}', to_jsonb($1::text)), updated_at = now() WHERE id = $2::uuid`,
		aquariumKey, folderID)
	if err != nil {
		return fmt.Errorf("setting folder key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("folder %s: %w", folderID, ErrFolderNotFound)
	}
	return nil
}

func encodeEntity(attrib map[string]any, data entityData) ([]byte, []byte, error) {
	if attrib == nil {
		attrib = map[string]any{}
	}
	a, err := json.Marshal(attrib)
	if err != nil {
		return nil, nil, fmt.Errorf("marshaling attrib: %w", err)
	}
	if data.OwnAttrib == nil {
		data.OwnAttrib = []string{}
	}
	d, err := json.Marshal(data)
	if err != nil {
		return nil, nil, fmt.Errorf("marshaling data: %w", err)
	}
	return a, d, nil
}

func (s *PostgresStore) ProjectExists(ctx context.Context, name, code string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM public.projects WHERE name = $1 OR code = $2)`, name, code,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking project: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) CreateProject(ctx context.Context, name, code string, anatomy model.Anatomy) error {
	if err := ValidateProjectName(name); err != nil {
		return err
	}
	schema := pgx.Identifier{"project_" + name}.Sanitize()
	attrib, err := json.Marshal(nonNil(anatomy.Attributes))
	if err != nil {
		return fmt.Errorf("marshaling project attrib: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
INSERT INTO public.projects (name, code, attrib)
VALUES ($1, $2, $3)
ON CONFLICT DO NOTHING`, name, code, attrib)
	if err != nil {
		return fmt.Errorf("inserting project: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("project %s: %w", name, ErrProjectExists)
	}
	if _, err := tx.Exec(ctx, fmt.Sprintf(projectSchema, schema)); err != nil {
		return fmt.Errorf("creating project schema: %w", err)
	}

	for i, tt := range anatomy.TaskTypes {
		data, err := json.Marshal(tt)
		if err != nil {
			return fmt.Errorf("marshaling task type: %w", err)
		}
		if _, err := tx.Exec(ctx, `INSERT INTO `+schema+`.task_types (name, position, data) VALUES ($1, $2, $3)`, tt.Name, i, data); err != nil {
			return fmt.Errorf("inserting task type %s: %w", tt.Name, err)
		}
	}
	for i, st := range anatomy.Statuses {
		data, err := json.Marshal(st)
		if err != nil {
			return fmt.Errorf("marshaling status: %w", err)
		}
		if _, err := tx.Exec(ctx, `INSERT INTO `+schema+`.statuses (name, position, data) VALUES ($1, $2, $3)`, st.Name, i, data); err != nil {
			return fmt.Errorf("inserting status %s: %w", st.Name, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing project: %w", err)
	}
	return nil
}

func (s *PostgresStore) SetProjectKey(ctx context.Context, name, aquariumKey string) error {
	query := `UPDATE public.projects SET data = jsonb_set(data, '{aquariumProjectKey}', to_jsonb($1::text)), updated_at = now() WHERE name = $2`
	args := []any{aquariumKey, name}
	if aquariumKey == "" {
		query = `UPDATE public.projects SET data = data - 'aquariumProjectKey', updated_at = now() WHERE name = $1`
		args = []any{name}
	}
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("setting project key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("project %s: %w", name, ErrProjectNotFound)
	}
	return nil
}

func (s *PostgresStore) ProjectLinks(ctx context.Context) (map[string]string, error) {
	rows, err := s.pool.Query(ctx, `
SELECT name, data->>'aquariumProjectKey'
FROM public.projects
WHERE data->>'aquariumProjectKey' IS NOT NULL`)
	if err != nil {
		return nil, fmt.Errorf("listing project links: %w", err)
	}
	defer rows.Close()

	links := make(map[string]string)
	for rows.Next() {
		var name, key string
		if err := rows.Scan(&name, &key); err != nil {
			return nil, fmt.Errorf("scanning project link: %w", err)
		}
		links[key] = name
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating project link rows: %w", err)
	}
	return links, nil
}

func (s *PostgresStore) UpdateProjectAttrib(ctx context.Context, name string, attrib map[string]any) error {
	raw, err := json.Marshal(nonNil(attrib))
	if err != nil {
		return fmt.Errorf("marshaling project attrib: %w", err)
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE public.projects SET attrib = attrib || $1::jsonb, updated_at = now() WHERE name = $2`, raw, name)
	if err != nil {
		return fmt.Errorf("updating project attrib: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("project %s: %w", name, ErrProjectNotFound)
	}
	return nil
}

func (s *PostgresStore) Users(ctx context.Context) ([]model.User, error) {
	rows, err := s.pool.Query(ctx, `SELECT name, COALESCE(attrib->>'email', '') FROM public.users ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		var u model.User
		if err := rows.Scan(&u.Name, &u.Email); err != nil {
			return nil, fmt.Errorf("scanning user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating user rows: %w", err)
	}
	return users, nil
}

func (s *PostgresStore) Hierarchy(ctx context.Context, project string) ([]model.HierarchyEntry, error) {
	folders, err := table(project, "folders")
	if err != nil {
		return nil, err
	}
	tasks, _ := table(project, "tasks")
	query := `
SELECT f.id::text, COALESCE(f.parent_id::text, ''), COALESCE(f.folder_type, ''), f.name, COALESCE(f.label, ''),
       COALESCE(array_agg(t.name ORDER BY t.name) FILTER (WHERE t.id IS NOT NULL), '{}')
FROM ` + folders + ` f
LEFT JOIN ` + tasks + ` t ON t.folder_id = f.id
GROUP BY f.id
ORDER BY f.created_at, f.id`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing hierarchy: %w", err)
	}
	defer rows.Close()

	var entries []model.HierarchyEntry
	for rows.Next() {
		var e model.HierarchyEntry
		if err := rows.Scan(&e.ID, &e.ParentID, &e.Type, &e.Name, &e.Label, &e.TaskNames); err != nil {
			return nil, fmt.Errorf("scanning hierarchy entry: %w", err)
		}
		e.HasTasks = len(e.TaskNames) > 0
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating hierarchy rows: %w", err)
	}
	return entries, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func nonNil(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
