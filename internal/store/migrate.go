package store

import (
	"embed"
	"io/fs"
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationFS embed.FS

// migration is one additive schema step. Versions come from the numeric
// filename prefix.
type migration struct {
	version int
	name    string
	sql     string
}

// loadMigrations reads the migrations for a dialect in version order.
func loadMigrations(dialect string) ([]migration, error) {
	dir := "migrations/" + dialect
	entries, err := fs.ReadDir(migrationFS, dir)
	if err != nil {
		return nil, eris.Wrapf(err, "store: read migration dir %s", dir)
	}

	out := make([]migration, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		prefix, _, ok := strings.Cut(name, "_")
		if !ok {
			return nil, eris.Errorf("store: migration %s has no version prefix", name)
		}
		version, err := strconv.Atoi(prefix)
		if err != nil {
			return nil, eris.Wrapf(err, "store: parse migration version %s", name)
		}
		data, err := migrationFS.ReadFile(dir + "/" + name)
		if err != nil {
			return nil, eris.Wrapf(err, "store: read migration %s", name)
		}
		out = append(out, migration{version: version, name: name, sql: string(data)})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].version < out[j].version })
	return out, nil
}

// LatestSchemaVersion returns the highest migration version shipped with
// the binary.
func LatestSchemaVersion() int {
	ms, err := loadMigrations("sqlite")
	if err != nil || len(ms) == 0 {
		return 0
	}
	return ms[len(ms)-1].version
}
