package sign

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

// setupTestDB creates an in-memory SQLite database with the signs table.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	schema := `
		CREATE TABLE signs (
			device_id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			protocol_version TEXT NOT NULL CHECK (protocol_version IN ('new', 'old')),
			simulated INTEGER NOT NULL DEFAULT 0,
			error_count INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		) STRICT;
		CREATE INDEX idx_signs_simulated ON signs(simulated);
	`

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		t.Fatalf("failed to create test schema: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

func testSign(deviceID, name string) *Sign {
	return &Sign{
		DeviceID:        deviceID,
		Name:            name,
		ProtocolVersion: ProtocolNew,
	}
}

// repositories returns both implementations so every behaviour test runs
// against each.
func repositories(t *testing.T) map[string]Repository {
	t.Helper()
	return map[string]Repository{
		"sqlite": NewSQLiteRepository(setupTestDB(t)),
		"memory": NewMemoryRepository(),
	}
}

func TestRepositoryCreateAndGet(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			s := testSign("ABCD1234EFGH", "Lobby Sign")
			if err := repo.Create(ctx, s); err != nil {
				t.Fatalf("Create() error = %v", err)
			}

			got, err := repo.GetByID(ctx, "ABCD1234EFGH")
			if err != nil {
				t.Fatalf("GetByID() error = %v", err)
			}
			if got.Name != "Lobby Sign" {
				t.Errorf("Name = %q, want %q", got.Name, "Lobby Sign")
			}
			if got.ProtocolVersion != ProtocolNew {
				t.Errorf("ProtocolVersion = %q, want %q", got.ProtocolVersion, ProtocolNew)
			}
			if got.CreatedAt.IsZero() || got.UpdatedAt.IsZero() {
				t.Error("timestamps not set on create")
			}
		})
	}
}

func TestRepositoryCreateDuplicate(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			if err := repo.Create(ctx, testSign("ABCD1234EFGH", "First")); err != nil {
				t.Fatalf("Create() error = %v", err)
			}
			err := repo.Create(ctx, testSign("ABCD1234EFGH", "Second"))
			if !errors.Is(err, ErrExists) {
				t.Errorf("Create() duplicate error = %v, want ErrExists", err)
			}
		})
	}
}

func TestRepositoryCreateInvalid(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			err := repo.Create(ctx, testSign("short", "Bad ID"))
			if !errors.Is(err, ErrInvalidDeviceID) {
				t.Errorf("Create() error = %v, want ErrInvalidDeviceID", err)
			}

			bad := testSign("ABCD1234EFGH", "Bad Version")
			bad.ProtocolVersion = "v3"
			err = repo.Create(ctx, bad)
			if !errors.Is(err, ErrInvalidProtocolVersion) {
				t.Errorf("Create() error = %v, want ErrInvalidProtocolVersion", err)
			}
		})
	}
}

func TestRepositoryGetMissing(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			_, err := repo.GetByID(context.Background(), "MISSING12345")
			if !errors.Is(err, ErrNotFound) {
				t.Errorf("GetByID() error = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestRepositoryListOrdering(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			for _, s := range []*Sign{
				testSign("SIGN0000CCCC", "Charlie"),
				testSign("SIGN0000AAAA", "Alpha"),
				testSign("SIGN0000BBBB", "Bravo"),
			} {
				if err := repo.Create(ctx, s); err != nil {
					t.Fatalf("Create() error = %v", err)
				}
			}

			signs, err := repo.List(ctx)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if len(signs) != 3 {
				t.Fatalf("List() returned %d signs, want 3", len(signs))
			}
			for i, want := range []string{"Alpha", "Bravo", "Charlie"} {
				if signs[i].Name != want {
					t.Errorf("signs[%d].Name = %q, want %q", i, signs[i].Name, want)
				}
			}
		})
	}
}

func TestRepositoryUpdate(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			s := testSign("ABCD1234EFGH", "Before")
			if err := repo.Create(ctx, s); err != nil {
				t.Fatalf("Create() error = %v", err)
			}

			s.Name = "After"
			s.Simulated = true
			if err := repo.Update(ctx, s); err != nil {
				t.Fatalf("Update() error = %v", err)
			}

			got, err := repo.GetByID(ctx, "ABCD1234EFGH")
			if err != nil {
				t.Fatalf("GetByID() error = %v", err)
			}
			if got.Name != "After" || !got.Simulated {
				t.Errorf("updated sign = %+v", got)
			}

			missing := testSign("MISSING12345", "Ghost")
			if err := repo.Update(ctx, missing); !errors.Is(err, ErrNotFound) {
				t.Errorf("Update() missing error = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestRepositoryDelete(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			if err := repo.Create(ctx, testSign("ABCD1234EFGH", "Doomed")); err != nil {
				t.Fatalf("Create() error = %v", err)
			}
			if err := repo.Delete(ctx, "ABCD1234EFGH"); err != nil {
				t.Fatalf("Delete() error = %v", err)
			}
			if _, err := repo.GetByID(ctx, "ABCD1234EFGH"); !errors.Is(err, ErrNotFound) {
				t.Errorf("GetByID() after delete error = %v, want ErrNotFound", err)
			}
			if err := repo.Delete(ctx, "ABCD1234EFGH"); !errors.Is(err, ErrNotFound) {
				t.Errorf("Delete() missing error = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestRepositoryIncrementErrorCount(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			if err := repo.Create(ctx, testSign("ABCD1234EFGH", "Flaky")); err != nil {
				t.Fatalf("Create() error = %v", err)
			}

			for i := 0; i < 3; i++ {
				if err := repo.IncrementErrorCount(ctx, "ABCD1234EFGH"); err != nil {
					t.Fatalf("IncrementErrorCount() error = %v", err)
				}
			}

			got, err := repo.GetByID(ctx, "ABCD1234EFGH")
			if err != nil {
				t.Fatalf("GetByID() error = %v", err)
			}
			if got.ErrorCount != 3 {
				t.Errorf("ErrorCount = %d, want 3", got.ErrorCount)
			}

			if err := repo.IncrementErrorCount(ctx, "MISSING12345"); !errors.Is(err, ErrNotFound) {
				t.Errorf("IncrementErrorCount() missing error = %v, want ErrNotFound", err)
			}
		})
	}
}
