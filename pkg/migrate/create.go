package migrate

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/pressly/goose/v3"
)

var unsafeChars = regexp.MustCompile(`[^a-z0-9]+`)

// CreateSQLMigration writes <dir>/<YYYYMMDDHHMMSS>_<name>.sql from goose's
// SQL template and returns its path.
func CreateSQLMigration(dir, name string) (string, error) {
	if dir == "" {
		return "", fmt.Errorf("dir is required")
	}
	safe := strings.Trim(unsafeChars.ReplaceAllString(strings.ToLower(name), "_"), "_")
	if safe == "" {
		return "", fmt.Errorf("name %q has no usable characters", name)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir %q: %w", dir, err)
	}
	if err := goose.Create(nil, dir, safe, "sql"); err != nil {
		return "", fmt.Errorf("create migration: %w", err)
	}

	created, err := filepath.Glob(filepath.Join(dir, "*_"+safe+".sql"))
	if err != nil || len(created) == 0 {
		return "", fmt.Errorf("created migration for %q not found", safe)
	}
	// Timestamps sort lexically; the newest match is ours.
	return created[len(created)-1], nil
}
