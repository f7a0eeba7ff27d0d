package preflight

import (
	"context"
	"fmt"
	"strings"

	"lsm/internal/config"
	"lsm/internal/store"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
	// Advisory failures are reported but do not block startup.
	Advisory bool
}

// RunAll executes every preflight check for the given config. A nil store
// skips the database checks.
func RunAll(ctx context.Context, cfg *config.Config, st *store.Store) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result

	// The data directory only matters for the sqlite file, lock and logs.
	results = append(results, CheckDirectoryAccess("Data directory", cfg.Paths.DataDir))
	results = append(results, CheckDirectoryAccess("Upload directory", cfg.Paths.UploadDir))

	if st != nil {
		results = append(results, CheckDatabase(ctx, st))
		results = append(results, CheckAdminAccount(ctx, st))
	}
	return results
}

// Failed returns the blocking results that did not pass.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Passed && !r.Advisory {
			out = append(out, r)
		}
	}
	return out
}

// Summarize joins failed results into a single error, or returns nil.
func Summarize(results []Result) error {
	failed := Failed(results)
	if len(failed) == 0 {
		return nil
	}
	parts := make([]string, len(failed))
	for i, r := range failed {
		parts[i] = r.Name + ": " + r.Detail
	}
	return fmt.Errorf("preflight failed: %s", strings.Join(parts, "; "))
}
