package sign

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Repository defines persistence operations for provisioned signs.
// The abstraction allows different implementations (SQLite, in-memory)
// and enables unit testing without database dependencies.
type Repository interface {
	// GetByID retrieves a sign by its device identifier.
	// Returns ErrNotFound if the sign does not exist.
	GetByID(ctx context.Context, deviceID string) (*Sign, error)

	// List retrieves all provisioned signs ordered by name.
	List(ctx context.Context) ([]Sign, error)

	// Create inserts a new sign after validating it.
	// Returns ErrExists if the device identifier is already registered.
	Create(ctx context.Context, s *Sign) error

	// Update modifies an existing sign.
	// Returns ErrNotFound if the sign does not exist.
	Update(ctx context.Context, s *Sign) error

	// Delete removes a sign by device identifier.
	// Returns ErrNotFound if the sign does not exist.
	Delete(ctx context.Context, deviceID string) error

	// IncrementErrorCount bumps the sign's device-reported error counter.
	IncrementErrorCount(ctx context.Context, deviceID string) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
// The db parameter should be an open SQLite connection with the signs
// table migrated.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const signColumns = `device_id, name, protocol_version, simulated, error_count, created_at, updated_at`

// GetByID retrieves a sign by its device identifier.
func (r *SQLiteRepository) GetByID(ctx context.Context, deviceID string) (*Sign, error) {
	query := `SELECT ` + signColumns + ` FROM signs WHERE device_id = ?`

	row := r.db.QueryRowContext(ctx, query, deviceID)
	s, err := scanSign(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying sign by id: %w", err)
	}
	return s, nil
}

// List retrieves all provisioned signs ordered by name.
func (r *SQLiteRepository) List(ctx context.Context) ([]Sign, error) {
	query := `SELECT ` + signColumns + ` FROM signs ORDER BY name`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying signs: %w", err)
	}
	defer rows.Close()

	var signs []Sign
	for rows.Next() {
		s, err := scanSign(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning sign: %w", err)
		}
		signs = append(signs, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating signs: %w", err)
	}

	return signs, nil
}

// Create inserts a new sign after validating it.
func (r *SQLiteRepository) Create(ctx context.Context, s *Sign) error {
	if err := Validate(s); err != nil {
		return err
	}

	now := time.Now().UTC()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = now

	query := `
		INSERT INTO signs (` + signColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		s.DeviceID,
		s.Name,
		string(s.ProtocolVersion),
		boolToInt(s.Simulated),
		s.ErrorCount,
		s.CreatedAt.Format(time.RFC3339),
		s.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrExists
		}
		return fmt.Errorf("inserting sign: %w", err)
	}

	return nil
}

// Update modifies an existing sign.
func (r *SQLiteRepository) Update(ctx context.Context, s *Sign) error {
	if err := Validate(s); err != nil {
		return err
	}

	s.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE signs SET
			name = ?, protocol_version = ?, simulated = ?, error_count = ?, updated_at = ?
		WHERE device_id = ?`

	result, err := r.db.ExecContext(ctx, query,
		s.Name,
		string(s.ProtocolVersion),
		boolToInt(s.Simulated),
		s.ErrorCount,
		s.UpdatedAt.Format(time.RFC3339),
		s.DeviceID,
	)
	if err != nil {
		return fmt.Errorf("updating sign: %w", err)
	}

	return requireRow(result)
}

// Delete removes a sign by device identifier.
func (r *SQLiteRepository) Delete(ctx context.Context, deviceID string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM signs WHERE device_id = ?", deviceID)
	if err != nil {
		return fmt.Errorf("deleting sign: %w", err)
	}
	return requireRow(result)
}

// IncrementErrorCount bumps the sign's device-reported error counter.
func (r *SQLiteRepository) IncrementErrorCount(ctx context.Context, deviceID string) error {
	query := `
		UPDATE signs
		SET error_count = error_count + 1, updated_at = ?
		WHERE device_id = ?`

	result, err := r.db.ExecContext(ctx, query,
		time.Now().UTC().Format(time.RFC3339),
		deviceID,
	)
	if err != nil {
		return fmt.Errorf("incrementing error count: %w", err)
	}
	return requireRow(result)
}

// requireRow converts a zero-rows-affected result into ErrNotFound.
func requireRow(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// rowScanner is an interface that sql.Row and sql.Rows both implement.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanSign scans a row into a Sign.
func scanSign(scanner rowScanner) (*Sign, error) {
	var s Sign
	var protocolVersion string
	var simulated int
	var createdAt, updatedAt string

	err := scanner.Scan(
		&s.DeviceID,
		&s.Name,
		&protocolVersion,
		&simulated,
		&s.ErrorCount,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	s.ProtocolVersion = ProtocolVersion(protocolVersion)
	s.Simulated = simulated != 0

	s.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	s.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt)
	if err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}

	return &s, nil
}

// boolToInt converts a boolean to 0/1 for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// isUniqueConstraintError checks if an error is a SQLite unique constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "unique constraint")
}
