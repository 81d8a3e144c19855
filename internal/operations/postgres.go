package operations

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/csvimport/internal/core"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS products (
    sku           TEXT PRIMARY KEY,
    name          TEXT             NOT NULL,
    price         DOUBLE PRECISION NOT NULL,
    currency      TEXT             NOT NULL,
    stock         BIGINT           NOT NULL DEFAULT 0,
    active        BOOLEAN          NOT NULL DEFAULT true,
    tags          TEXT[]           NOT NULL DEFAULT '{}',
    category_ids  BIGINT[]         NOT NULL DEFAULT '{}',
    brand_id      BIGINT,
    owner_id      BIGINT,
    image_id      BIGINT,
    url           TEXT             NOT NULL DEFAULT '',
    support_email TEXT             NOT NULL DEFAULT '',
    status        TEXT             NOT NULL,
    updated_at    TIMESTAMPTZ      NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS contacts (
    email       TEXT PRIMARY KEY,
    first_name  TEXT        NOT NULL DEFAULT '',
    last_name   TEXT        NOT NULL DEFAULT '',
    phone       TEXT        NOT NULL DEFAULT '',
    company_id  BIGINT,
    owner_id    BIGINT,
    state       TEXT        NOT NULL DEFAULT '',
    country     TEXT        NOT NULL DEFAULT '',
    tag_ids     BIGINT[]    NOT NULL DEFAULT '{}',
    subscribed  BOOLEAN     NOT NULL DEFAULT false,
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// The conflict branch only fires when a column changed, so an identical
// row returns nothing and counts as skipped. xmax is zero for a fresh insert.
const upsertProductSQL = `
INSERT INTO products (sku, name, price, currency, stock, active, tags, category_ids,
                      brand_id, owner_id, image_id, url, support_email, status)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
ON CONFLICT (sku) DO UPDATE SET
    name = EXCLUDED.name, price = EXCLUDED.price, currency = EXCLUDED.currency,
    stock = EXCLUDED.stock, active = EXCLUDED.active, tags = EXCLUDED.tags,
    category_ids = EXCLUDED.category_ids, brand_id = EXCLUDED.brand_id,
    owner_id = EXCLUDED.owner_id, image_id = EXCLUDED.image_id, url = EXCLUDED.url,
    support_email = EXCLUDED.support_email, status = EXCLUDED.status, updated_at = now()
WHERE (products.name, products.price, products.currency, products.stock, products.active,
       products.tags, products.category_ids, products.brand_id, products.owner_id,
       products.image_id, products.url, products.support_email, products.status)
      IS DISTINCT FROM
      (EXCLUDED.name, EXCLUDED.price, EXCLUDED.currency, EXCLUDED.stock, EXCLUDED.active,
       EXCLUDED.tags, EXCLUDED.category_ids, EXCLUDED.brand_id, EXCLUDED.owner_id,
       EXCLUDED.image_id, EXCLUDED.url, EXCLUDED.support_email, EXCLUDED.status)
RETURNING (xmax = 0)`

const upsertContactSQL = `
INSERT INTO contacts (email, first_name, last_name, phone, company_id, owner_id,
                      state, country, tag_ids, subscribed)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (email) DO UPDATE SET
    first_name = EXCLUDED.first_name, last_name = EXCLUDED.last_name, phone = EXCLUDED.phone,
    company_id = EXCLUDED.company_id, owner_id = EXCLUDED.owner_id, state = EXCLUDED.state,
    country = EXCLUDED.country, tag_ids = EXCLUDED.tag_ids, subscribed = EXCLUDED.subscribed,
    updated_at = now()
WHERE (contacts.first_name, contacts.last_name, contacts.phone, contacts.company_id,
       contacts.owner_id, contacts.state, contacts.country, contacts.tag_ids, contacts.subscribed)
      IS DISTINCT FROM
      (EXCLUDED.first_name, EXCLUDED.last_name, EXCLUDED.phone, EXCLUDED.company_id,
       EXCLUDED.owner_id, EXCLUDED.state, EXCLUDED.country, EXCLUDED.tag_ids, EXCLUDED.subscribed)
RETURNING (xmax = 0)`

// PostgresRepository implements both repositories on PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// EnsureSchema creates the products and contacts tables if missing.
func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create operations schema: %w", err)
	}
	return nil
}

func (r *PostgresRepository) UpsertBySKU(ctx context.Context, p Product) (core.Outcome, error) {
	row := r.pool.QueryRow(ctx, upsertProductSQL,
		p.SKU, p.Name, p.Price, p.Currency, p.Stock, p.Active, p.Tags, p.CategoryIDs,
		p.BrandID, p.OwnerID, p.ImageID, p.URL, p.SupportEmail, p.Status,
	)
	return scanOutcome(row, "product")
}

func (r *PostgresRepository) CountProducts(ctx context.Context) (int64, error) {
	var n int64
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM products`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count products: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) UpsertByEmail(ctx context.Context, c Contact) (core.Outcome, error) {
	row := r.pool.QueryRow(ctx, upsertContactSQL,
		c.Email, c.FirstName, c.LastName, c.Phone, c.CompanyID, c.OwnerID,
		c.State, c.Country, c.TagIDs, c.Subscribed,
	)
	return scanOutcome(row, "contact")
}

func scanOutcome(row pgx.Row, what string) (core.Outcome, error) {
	var inserted bool
	err := row.Scan(&inserted)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.OutcomeSkipped, nil
	}
	if err != nil {
		return "", fmt.Errorf("upsert %s: %w", what, err)
	}
	if inserted {
		return core.OutcomeCreated, nil
	}
	return core.OutcomeUpdated, nil
}
