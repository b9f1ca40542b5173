package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/grimoire-rpg/grimoire/pkg/document"
)

var _ Store = (*PostgresStore)(nil)

// PostgresStore is the SQL adapter. Document payloads live in JSONB columns;
// the (user_id, name) pair carries a unique constraint, so the concurrent
// duplicate-name create race that the Redis adapter leaves open is arbitrated
// here by the database.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens a connection pool and verifies connectivity.
// dsn is a lib/pq connection string.
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres connection: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to reach postgres: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// Close closes the connection pool. Implements io.Closer.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// EnsureSchema creates the document tables when they do not exist yet.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS sheets (
	id             BIGSERIAL PRIMARY KEY,
	user_id        BIGINT      NOT NULL,
	sheet_name     VARCHAR(32) NOT NULL,
	sheet_password VARCHAR(64) NOT NULL,
	is_public      BOOLEAN     NOT NULL DEFAULT FALSE,
	legacy         BOOLEAN     NOT NULL DEFAULT FALSE,
	attributes     JSONB       NOT NULL,
	last_use       TIMESTAMPTZ NOT NULL,
	UNIQUE (user_id, sheet_name)
);
CREATE TABLE IF NOT EXISTS macros (
	id         BIGSERIAL PRIMARY KEY,
	user_id    BIGINT      NOT NULL,
	macro_name VARCHAR(32) NOT NULL,
	is_public  BOOLEAN     NOT NULL DEFAULT FALSE,
	legacy     BOOLEAN     NOT NULL DEFAULT FALSE,
	macros     JSONB       NOT NULL,
	last_use   TIMESTAMPTZ NOT NULL,
	UNIQUE (user_id, macro_name)
);
CREATE TABLE IF NOT EXISTS users (
	id         BIGINT PRIMARY KEY,
	username   VARCHAR(64)  NOT NULL,
	avatar_url VARCHAR(256) NOT NULL DEFAULT '',
	is_beta    BOOLEAN      NOT NULL DEFAULT FALSE,
	is_premium BOOLEAN      NOT NULL DEFAULT FALSE
);`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create document tables: %w", err)
	}
	return nil
}

func scanSheet(row *sql.Row) (*document.Sheet, error) {
	var sheet document.Sheet
	var attrs []byte
	err := row.Scan(&sheet.ID, &sheet.UserID, &sheet.SheetName, &sheet.SheetPassword,
		&sheet.IsPublic, &sheet.Legacy, &attrs, &sheet.LastUse)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan sheet row: %w", err)
	}
	if err := json.Unmarshal(attrs, &sheet.Attributes); err != nil {
		return nil, fmt.Errorf("failed to deserialize sheet %d: %w", sheet.ID, err)
	}
	return &sheet, nil
}

const sheetColumns = "id, user_id, sheet_name, sheet_password, is_public, legacy, attributes, last_use"

// SheetByID retrieves a sheet by id.
func (s *PostgresStore) SheetByID(ctx context.Context, id int64) (*document.Sheet, error) {
	return scanSheet(s.db.QueryRowContext(ctx,
		"SELECT "+sheetColumns+" FROM sheets WHERE id = $1", id))
}

// SheetByOwnerAndName retrieves a sheet by its owner and name.
func (s *PostgresStore) SheetByOwnerAndName(ctx context.Context, userID int64, name string) (*document.Sheet, error) {
	return scanSheet(s.db.QueryRowContext(ctx,
		"SELECT "+sheetColumns+" FROM sheets WHERE user_id = $1 AND sheet_name = $2", userID, name))
}

// SheetHeadsByOwner lists the owner's sheets without payloads.
func (s *PostgresStore) SheetHeadsByOwner(ctx context.Context, userID int64) ([]document.SheetHead, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, user_id, sheet_name FROM sheets WHERE user_id = $1 ORDER BY id", userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sheets: %w", err)
	}
	defer rows.Close()

	var heads []document.SheetHead
	for rows.Next() {
		var h document.SheetHead
		if err := rows.Scan(&h.ID, &h.UserID, &h.SheetName); err != nil {
			return nil, fmt.Errorf("failed to scan sheet head: %w", err)
		}
		heads = append(heads, h)
	}
	return heads, rows.Err()
}

// CreateSheet inserts a new row and returns it with the assigned id.
func (s *PostgresStore) CreateSheet(ctx context.Context, sheet *document.Sheet) (*document.Sheet, error) {
	attrs, err := json.Marshal(sheet.Attributes)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize sheet: %w", err)
	}
	created := *sheet
	err = s.db.QueryRowContext(ctx,
		`INSERT INTO sheets (user_id, sheet_name, sheet_password, is_public, legacy, attributes, last_use)
		 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		sheet.UserID, sheet.SheetName, sheet.SheetPassword, sheet.IsPublic, sheet.Legacy, attrs, sheet.LastUse,
	).Scan(&created.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to insert sheet: %w", err)
	}
	return &created, nil
}

// UpdateSheet replaces the mutable columns of an existing row.
func (s *PostgresStore) UpdateSheet(ctx context.Context, sheet *document.Sheet) (*document.Sheet, error) {
	attrs, err := json.Marshal(sheet.Attributes)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize sheet: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE sheets SET sheet_name = $1, is_public = $2, legacy = $3, attributes = $4, last_use = $5
		 WHERE id = $6`,
		sheet.SheetName, sheet.IsPublic, sheet.Legacy, attrs, sheet.LastUse, sheet.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to update sheet: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	return sheet, nil
}

// DeleteSheet removes a row and returns it as it was at deletion time.
func (s *PostgresStore) DeleteSheet(ctx context.Context, id int64) (*document.Sheet, error) {
	return scanSheet(s.db.QueryRowContext(ctx,
		"DELETE FROM sheets WHERE id = $1 RETURNING "+sheetColumns, id))
}

func scanMacro(row *sql.Row) (*document.Macro, error) {
	var macro document.Macro
	var payload []byte
	err := row.Scan(&macro.ID, &macro.UserID, &macro.MacroName,
		&macro.IsPublic, &macro.Legacy, &payload, &macro.LastUse)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan macro row: %w", err)
	}
	if err := json.Unmarshal(payload, &macro.Macros); err != nil {
		return nil, fmt.Errorf("failed to deserialize macro %d: %w", macro.ID, err)
	}
	return &macro, nil
}

const macroColumns = "id, user_id, macro_name, is_public, legacy, macros, last_use"

// MacroByID retrieves a macro document by id.
func (s *PostgresStore) MacroByID(ctx context.Context, id int64) (*document.Macro, error) {
	return scanMacro(s.db.QueryRowContext(ctx,
		"SELECT "+macroColumns+" FROM macros WHERE id = $1", id))
}

// MacroByOwnerAndName retrieves a macro document by its owner and name.
func (s *PostgresStore) MacroByOwnerAndName(ctx context.Context, userID int64, name string) (*document.Macro, error) {
	return scanMacro(s.db.QueryRowContext(ctx,
		"SELECT "+macroColumns+" FROM macros WHERE user_id = $1 AND macro_name = $2", userID, name))
}

// MacroHeadsByOwner lists the owner's macro documents without payloads.
func (s *PostgresStore) MacroHeadsByOwner(ctx context.Context, userID int64) ([]document.MacroHead, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, user_id, macro_name FROM macros WHERE user_id = $1 ORDER BY id", userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list macros: %w", err)
	}
	defer rows.Close()

	var heads []document.MacroHead
	for rows.Next() {
		var h document.MacroHead
		if err := rows.Scan(&h.ID, &h.UserID, &h.MacroName); err != nil {
			return nil, fmt.Errorf("failed to scan macro head: %w", err)
		}
		heads = append(heads, h)
	}
	return heads, rows.Err()
}

// CreateMacro inserts a new row and returns it with the assigned id.
func (s *PostgresStore) CreateMacro(ctx context.Context, macro *document.Macro) (*document.Macro, error) {
	payload, err := json.Marshal(macro.Macros)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize macro: %w", err)
	}
	created := *macro
	err = s.db.QueryRowContext(ctx,
		`INSERT INTO macros (user_id, macro_name, is_public, legacy, macros, last_use)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		macro.UserID, macro.MacroName, macro.IsPublic, macro.Legacy, payload, macro.LastUse,
	).Scan(&created.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to insert macro: %w", err)
	}
	return &created, nil
}

// UpdateMacro replaces the mutable columns of an existing row.
func (s *PostgresStore) UpdateMacro(ctx context.Context, macro *document.Macro) (*document.Macro, error) {
	payload, err := json.Marshal(macro.Macros)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize macro: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE macros SET macro_name = $1, is_public = $2, legacy = $3, macros = $4, last_use = $5
		 WHERE id = $6`,
		macro.MacroName, macro.IsPublic, macro.Legacy, payload, macro.LastUse, macro.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to update macro: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	return macro, nil
}

// DeleteMacro removes a row and returns it as it was at deletion time.
func (s *PostgresStore) DeleteMacro(ctx context.Context, id int64) (*document.Macro, error) {
	return scanMacro(s.db.QueryRowContext(ctx,
		"DELETE FROM macros WHERE id = $1 RETURNING "+macroColumns, id))
}
