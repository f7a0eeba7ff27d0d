package preflight

import (
	"context"
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"lsm/internal/store"
)

// CheckDirectoryAccess verifies that path exists, is a directory, and is
// readable, writable and searchable by the current process.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckDatabase pings the database and reports the applied schema version.
func CheckDatabase(ctx context.Context, st *store.Store) Result {
	const name = "Database"

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := st.Ping(checkCtx); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", st.Dialect().Name(), err)}
	}
	applied, err := st.AppliedMigrations(checkCtx)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: read migrations: %v)", st.Dialect().Name(), err)}
	}
	version := "none"
	if len(applied) > 0 {
		version = applied[len(applied)-1]
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (schema %s)", st.Dialect().Name(), version)}
}

// CheckAdminAccount verifies that at least one active admin can log in.
func CheckAdminAccount(ctx context.Context, st *store.Store) Result {
	const name = "Admin account"

	var n int64
	err := st.QueryRow(ctx, `
        SELECT COUNT(*) FROM users u
        JOIN roles r ON r.id = u.role_id
        WHERE r.name = 'admin' AND u.status = ?`, true).Scan(&n)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("error: %v", err)}
	}
	if n == 0 {
		return Result{Name: name, Advisory: true, Detail: "no active admin (create one with: lsm users add --role admin)"}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%d active", n)}
}
