// Package postgres provides a persistence.Store implementation that keeps
// logbooks and flow details in a PostgreSQL database.
package postgres

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	// Register the postgres driver with database/sql.
	_ "github.com/lib/pq"
	"github.com/openstack-archive/poppy-sub002/persistence"
	"golang.org/x/xerrors"
)

var (
	upsertLogbookQuery = `
INSERT INTO logbooks (id, name, created_at, updated_at) VALUES ($1, $2, $3, $4)
ON CONFLICT (id) DO UPDATE SET name=$2, updated_at=$4
`
	findLogbookQuery   = "SELECT name, created_at, updated_at FROM logbooks WHERE id=$1"
	deleteLogbookQuery = "DELETE FROM logbooks WHERE id=$1"
	deleteDetailsQuery = "DELETE FROM flow_details WHERE book_id=$1"

	upsertDetailQuery = `
INSERT INTO flow_details (id, book_id, name, state, results, updated_at) VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (id) DO UPDATE SET state=$4, results=$5, updated_at=$6
`
	findDetailQuery  = "SELECT book_id, name, state, results, updated_at FROM flow_details WHERE id=$1"
	listDetailsQuery = "SELECT id, name, state, results, updated_at FROM flow_details WHERE book_id=$1 ORDER BY updated_at"

	// Compile-time check for ensuring PostgresStore implements Store.
	_ persistence.Store = (*PostgresStore)(nil)
)

// PostgresStore implements a persistence store that writes logbooks and
// flow details to a PostgreSQL instance.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore returns a PostgresStore instance that connects to the
// PostgreSQL instance specified by dsn.
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	return &PostgresStore{db: db}, nil
}

// Close terminates the connection to the backing PostgreSQL instance.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// SaveLogbook implements persistence.Store.
func (s *PostgresStore) SaveLogbook(book *persistence.Logbook) error {
	if book.ID == uuid.Nil {
		book.ID = uuid.New()
		book.CreatedAt = time.Now().UTC()
	}
	book.UpdatedAt = time.Now().UTC()

	if _, err := s.db.Exec(upsertLogbookQuery, book.ID, book.Name, book.CreatedAt, book.UpdatedAt); err != nil {
		return xerrors.Errorf("save logbook: %w", err)
	}
	return nil
}

// GetLogbook implements persistence.Store.
func (s *PostgresStore) GetLogbook(id uuid.UUID) (*persistence.Logbook, error) {
	row := s.db.QueryRow(findLogbookQuery, id)
	book := &persistence.Logbook{ID: id}
	if err := row.Scan(&book.Name, &book.CreatedAt, &book.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, xerrors.Errorf("get logbook: %w", persistence.ErrNotFound)
		}
		return nil, xerrors.Errorf("get logbook: %w", err)
	}

	book.CreatedAt = book.CreatedAt.UTC()
	book.UpdatedAt = book.UpdatedAt.UTC()
	return book, nil
}

// DeleteLogbook implements persistence.Store.
func (s *PostgresStore) DeleteLogbook(id uuid.UUID) error {
	if _, err := s.db.Exec(deleteDetailsQuery, id); err != nil {
		return xerrors.Errorf("delete logbook: %w", err)
	}

	res, err := s.db.Exec(deleteLogbookQuery, id)
	if err != nil {
		return xerrors.Errorf("delete logbook: %w", err)
	}
	if numRows, _ := res.RowsAffected(); numRows == 0 {
		return xerrors.Errorf("delete logbook: %w", persistence.ErrNotFound)
	}
	return nil
}

// SaveFlowDetail implements persistence.Store.
func (s *PostgresStore) SaveFlowDetail(detail *persistence.FlowDetail) error {
	if detail.ID == uuid.Nil {
		detail.ID = uuid.New()
	}
	detail.UpdatedAt = time.Now().UTC()

	results, err := json.Marshal(detail.Results)
	if err != nil {
		return xerrors.Errorf("save flow detail: marshal results: %w", err)
	}

	if _, err := s.db.Exec(upsertDetailQuery, detail.ID, detail.BookID, detail.Name, detail.State, results, detail.UpdatedAt); err != nil {
		return xerrors.Errorf("save flow detail: %w", err)
	}
	return nil
}

// GetFlowDetail implements persistence.Store.
func (s *PostgresStore) GetFlowDetail(id uuid.UUID) (*persistence.FlowDetail, error) {
	row := s.db.QueryRow(findDetailQuery, id)

	var results []byte
	detail := &persistence.FlowDetail{ID: id}
	if err := row.Scan(&detail.BookID, &detail.Name, &detail.State, &results, &detail.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, xerrors.Errorf("get flow detail: %w", persistence.ErrNotFound)
		}
		return nil, xerrors.Errorf("get flow detail: %w", err)
	}

	if err := json.Unmarshal(results, &detail.Results); err != nil {
		return nil, xerrors.Errorf("get flow detail: unmarshal results: %w", err)
	}
	detail.UpdatedAt = detail.UpdatedAt.UTC()
	return detail, nil
}

// ListFlowDetails implements persistence.Store.
func (s *PostgresStore) ListFlowDetails(bookID uuid.UUID) ([]*persistence.FlowDetail, error) {
	rows, err := s.db.Query(listDetailsQuery, bookID)
	if err != nil {
		return nil, xerrors.Errorf("list flow details: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*persistence.FlowDetail
	for rows.Next() {
		var results []byte
		detail := &persistence.FlowDetail{BookID: bookID}
		if err := rows.Scan(&detail.ID, &detail.Name, &detail.State, &results, &detail.UpdatedAt); err != nil {
			return nil, xerrors.Errorf("list flow details: %w", err)
		}
		if err := json.Unmarshal(results, &detail.Results); err != nil {
			return nil, xerrors.Errorf("list flow details: unmarshal results: %w", err)
		}
		detail.UpdatedAt = detail.UpdatedAt.UTC()
		out = append(out, detail)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Errorf("list flow details: %w", err)
	}
	return out, nil
}
