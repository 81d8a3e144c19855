package entities

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/csvimport/internal/core"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS posts (
    id        BIGSERIAL PRIMARY KEY,
    post_type TEXT NOT NULL DEFAULT 'post',
    status    TEXT NOT NULL DEFAULT 'publish',
    slug      TEXT NOT NULL,
    title     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS posts_slug_idx ON posts (slug);

CREATE TABLE IF NOT EXISTS post_meta (
    post_id    BIGINT NOT NULL REFERENCES posts (id) ON DELETE CASCADE,
    meta_key   TEXT   NOT NULL,
    meta_value TEXT   NOT NULL
);
CREATE INDEX IF NOT EXISTS post_meta_key_value_idx ON post_meta (meta_key, meta_value);

CREATE TABLE IF NOT EXISTS terms (
    id       BIGSERIAL PRIMARY KEY,
    taxonomy TEXT NOT NULL,
    slug     TEXT NOT NULL,
    name     TEXT NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS terms_taxonomy_slug_key ON terms (taxonomy, slug);
CREATE UNIQUE INDEX IF NOT EXISTS terms_taxonomy_name_key ON terms (taxonomy, lower(name));

CREATE TABLE IF NOT EXISTS users (
    id    BIGSERIAL PRIMARY KEY,
    email TEXT NOT NULL,
    login TEXT NOT NULL UNIQUE,
    slug  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS attachments (
    id         BIGSERIAL PRIMARY KEY,
    source_url TEXT NOT NULL DEFAULT '',
    url        TEXT NOT NULL,
    filename   TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS attachments_source_url_idx ON attachments (source_url);
`

// uniqueViolation is the PostgreSQL SQLSTATE for a unique constraint failure.
const uniqueViolation = "23505"

// PostgresStore resolves entities against PostgreSQL tables.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// EnsureSchema creates the entity tables if they are missing.
func (p *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create entity schema: %w", err)
	}
	return nil
}

func (p *PostgresStore) Find(ctx context.Context, q core.EntityQuery) (int64, bool, error) {
	query, args, err := findQuery(q)
	if err != nil {
		return 0, false, err
	}

	var id int64
	err = p.pool.QueryRow(ctx, query, args...).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("find %s by %s: %w", q.Kind, q.By, err)
	}
	return id, true, nil
}

func (p *PostgresStore) CreateTerm(ctx context.Context, taxonomy, name string) (int64, error) {
	name = strings.TrimSpace(name)
	var id int64
	err := p.pool.QueryRow(ctx,
		`INSERT INTO terms (taxonomy, slug, name) VALUES ($1, $2, $3) RETURNING id`,
		taxonomy, Slugify(name), name,
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return 0, core.ErrDuplicateEntity
		}
		return 0, fmt.Errorf("insert term: %w", err)
	}
	return id, nil
}

func (p *PostgresStore) CreateAttachment(ctx context.Context, a Attachment) (int64, error) {
	var id int64
	err := p.pool.QueryRow(ctx,
		`INSERT INTO attachments (source_url, url, filename) VALUES ($1, $2, $3) RETURNING id`,
		a.SourceURL, a.URL, a.Filename,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert attachment: %w", err)
	}
	return id, nil
}

// findQuery builds the lookup statement for q. Every statement selects a
// single id, lowest first.
func findQuery(q core.EntityQuery) (string, []any, error) {
	if q.By == core.MatchID {
		id, err := strconv.ParseInt(q.Value, 10, 64)
		if err != nil {
			return "", nil, fmt.Errorf("invalid id %q: %w", q.Value, err)
		}
		table, ok := tables[q.Kind]
		if !ok {
			return "", nil, fmt.Errorf("unsupported entity kind %q", q.Kind)
		}
		where := []string{"id = $1"}
		args := []any{id}
		where, args = scope(q, where, args)
		return selectID(table, where), args, nil
	}

	var (
		where []string
		args  []any
	)
	switch q.Kind {
	case core.TypePost:
		switch q.By {
		case core.MatchSlug:
			where, args = []string{"slug = $1"}, []any{strings.ToLower(q.Value)}
		case core.MatchTitle:
			where, args = []string{"lower(title) = lower($1)"}, []any{q.Value}
		case core.MatchMeta:
			where = []string{"id IN (SELECT post_id FROM post_meta WHERE meta_key = $1 AND meta_value = $2)"}
			args = []any{q.MetaKey, q.Value}
		}
	case core.TypeTerm:
		switch q.By {
		case core.MatchSlug:
			where, args = []string{"slug = $1"}, []any{strings.ToLower(q.Value)}
		case core.MatchName:
			where, args = []string{"lower(name) = lower($1)"}, []any{q.Value}
		}
	case core.TypeUser:
		switch q.By {
		case core.MatchEmail:
			where, args = []string{"lower(email) = lower($1)"}, []any{q.Value}
		case core.MatchLogin:
			where, args = []string{"login = $1"}, []any{q.Value}
		case core.MatchSlug:
			where, args = []string{"slug = $1"}, []any{strings.ToLower(q.Value)}
		}
	case core.TypeAttachment:
		switch q.By {
		case core.MatchURL:
			where, args = []string{"(source_url = $1 OR url = $1)"}, []any{q.Value}
		case core.MatchFilename:
			where, args = []string{"filename ILIKE '%' || $1 || '%'"}, []any{escapeLike(q.Value)}
		}
	}
	if where == nil {
		return "", nil, fmt.Errorf("unsupported lookup of %s by %s", q.Kind, q.By)
	}
	where, args = scope(q, where, args)
	return selectID(tables[q.Kind], where), args, nil
}

var tables = map[core.FieldType]string{
	core.TypePost:       "posts",
	core.TypeTerm:       "terms",
	core.TypeUser:       "users",
	core.TypeAttachment: "attachments",
}

// scope adds the post type, post status and taxonomy filters.
func scope(q core.EntityQuery, where []string, args []any) ([]string, []any) {
	add := func(col, v string) {
		args = append(args, v)
		where = append(where, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	switch q.Kind {
	case core.TypePost:
		if q.PostType != "" {
			add("post_type", q.PostType)
		}
		if q.PostStatus != "" {
			add("status", q.PostStatus)
		}
	case core.TypeTerm:
		if q.Taxonomy != "" {
			add("taxonomy", q.Taxonomy)
		}
	}
	return where, args
}

func selectID(table string, where []string) string {
	return "SELECT id FROM " + table + " WHERE " + strings.Join(where, " AND ") + " ORDER BY id LIMIT 1"
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
