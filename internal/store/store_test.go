package store_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"lsm/internal/store"
)

func openTemp(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.OpenSQLite(filepath.Join(t.TempDir(), "lsm.db"))
	if err != nil {
		t.Fatalf("OpenSQLite failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpenAppliesMigrationsOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lsm.db")
	s, err := store.OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite failed: %v", err)
	}
	ctx := context.Background()
	versions, err := s.AppliedMigrations(ctx)
	if err != nil {
		t.Fatalf("AppliedMigrations failed: %v", err)
	}
	if len(versions) != 2 || versions[0] != "0001_init" || versions[1] != "0002_seed_roles" {
		t.Fatalf("unexpected migrations: %v", versions)
	}
	_ = s.Close()

	reopened, err := store.OpenSQLite(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()

	var roles int
	if err := reopened.QueryRow(ctx, "SELECT COUNT(1) FROM roles").Scan(&roles); err != nil {
		t.Fatalf("count roles: %v", err)
	}
	if roles != 3 {
		t.Fatalf("expected seeded roles once, got %d", roles)
	}
}

func TestSeededAdminHasAllPrivileges(t *testing.T) {
	s := openTemp(t)
	var count int
	err := s.QueryRow(context.Background(), `
        SELECT COUNT(1) FROM role_privileges rp
        JOIN roles r ON r.id = rp.role_id
        WHERE r.name = ?`, "admin").Scan(&count)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected admin to hold 3 privileges, got %d", count)
	}
}

func TestWithTxRollsBackOnError(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(tx *store.Tx) error {
		if _, err := tx.Exec(ctx, "INSERT INTO privileges (name) VALUES (?)", "temporary"); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	var count int
	if err := s.QueryRow(ctx, "SELECT COUNT(1) FROM privileges WHERE name = ?", "temporary").Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatal("expected rollback to discard insert")
	}
}

func TestPostgresRebind(t *testing.T) {
	got := store.Postgres().Rebind("SELECT * FROM t WHERE a = ? AND b = '?' AND c IN (?, ?)")
	want := "SELECT * FROM t WHERE a = $1 AND b = '?' AND c IN ($2, $3)"
	if got != want {
		t.Fatalf("Rebind mismatch:\n got %q\nwant %q", got, want)
	}
	if store.SQLite().Rebind("a = ?") != "a = ?" {
		t.Fatal("sqlite rebind must be identity")
	}
}
