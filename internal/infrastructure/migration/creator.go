package migration

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"text/template"
	"time"
)

const migrationUpTemplate = `-- Migration: {{.Name}}
-- Created: {{.Timestamp}}
-- Description: {{.Description}}

-- Ledger tables are append-only once posted; prefer new columns over rewrites.

`

const migrationDownTemplate = `-- Migration: {{.Name}} (Rollback)
-- Created: {{.Timestamp}}
-- Description: Rollback for {{.Description}}

`

const (
	upSuffix   = ".up.sql"
	downSuffix = ".down.sql"
)

// ErrInvalidMigrationSet is returned by Validate
var ErrInvalidMigrationSet = errors.New("invalid migration set")

// MigrationFile is a newly created migration file pair
type MigrationFile struct {
	Version     string
	Name        string
	Description string
	Timestamp   string
	UpPath      string
	DownPath    string
}

// MigrationInfo describes one migration found in a source
type MigrationInfo struct {
	Version uint
	Name    string
	HasUp   bool
	HasDown bool
}

// Base returns the file name without direction suffix
func (m MigrationInfo) Base() string {
	return fmt.Sprintf("%d_%s", m.Version, m.Name)
}

// CreateMigration writes an empty up/down pair versioned by now
// (YYYYMMDDHHMMSS) into migrationsDir.
func CreateMigration(migrationsDir, name, description string, now time.Time) (*MigrationFile, error) {
	safe := sanitizeName(name)
	if safe == "" {
		return nil, fmt.Errorf("migration name %q has no usable characters", name)
	}
	if err := os.MkdirAll(migrationsDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create migrations directory: %w", err)
	}

	version := now.UTC().Format("20060102150405")
	base := version + "_" + safe
	mf := &MigrationFile{
		Version:     version,
		Name:        name,
		Description: description,
		Timestamp:   now.UTC().Format(time.RFC3339),
		UpPath:      filepath.Join(migrationsDir, base+upSuffix),
		DownPath:    filepath.Join(migrationsDir, base+downSuffix),
	}

	if _, err := os.Stat(mf.UpPath); err == nil {
		return nil, fmt.Errorf("migration %s already exists", base)
	}
	if err := writeFromTemplate(mf.UpPath, migrationUpTemplate, mf); err != nil {
		return nil, fmt.Errorf("failed to create up migration: %w", err)
	}
	if err := writeFromTemplate(mf.DownPath, migrationDownTemplate, mf); err != nil {
		_ = os.Remove(mf.UpPath)
		return nil, fmt.Errorf("failed to create down migration: %w", err)
	}
	return mf, nil
}

func writeFromTemplate(path, tmplContent string, data *MigrationFile) error {
	tmpl, err := template.New("migration").Parse(tmplContent)
	if err != nil {
		return fmt.Errorf("failed to parse template: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file %s: %w", path, err)
	}
	defer f.Close()
	return tmpl.Execute(f, data)
}

// sanitizeName lowercases name and keeps [a-z0-9], folding separators into
// single underscores.
func sanitizeName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '_':
			s := b.String()
			if len(s) > 0 && s[len(s)-1] != '_' {
				b.WriteByte('_')
			}
		}
	}
	return strings.TrimSuffix(b.String(), "_")
}

// ListMigrations returns the migrations in the root of fsys ordered by
// version. Files that do not look like migrations are ignored.
func ListMigrations(fsys fs.FS) ([]MigrationInfo, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []MigrationInfo{}, nil
		}
		return nil, fmt.Errorf("failed to read migrations: %w", err)
	}

	byBase := make(map[string]*MigrationInfo)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, up, ok := parseFileName(entry.Name())
		if !ok {
			continue
		}
		m, seen := byBase[info.Base()]
		if !seen {
			m = &info
			byBase[info.Base()] = m
		}
		if up {
			m.HasUp = true
		} else {
			m.HasDown = true
		}
	}

	out := make([]MigrationInfo, 0, len(byBase))
	for _, m := range byBase {
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Version != out[j].Version {
			return out[i].Version < out[j].Version
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

// Validate checks that every migration has both directions and that no two
// migrations share a version.
func Validate(fsys fs.FS) error {
	list, err := ListMigrations(fsys)
	if err != nil {
		return err
	}
	var problems []string
	seen := make(map[uint]string)
	for _, m := range list {
		if !m.HasUp {
			problems = append(problems, m.Base()+" has no up file")
		}
		if !m.HasDown {
			problems = append(problems, m.Base()+" has no down file")
		}
		if other, dup := seen[m.Version]; dup {
			problems = append(problems, fmt.Sprintf("%s and %s share version %d", other, m.Base(), m.Version))
		}
		seen[m.Version] = m.Base()
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidMigrationSet, strings.Join(problems, "; "))
	}
	return nil
}

func parseFileName(name string) (info MigrationInfo, up bool, ok bool) {
	var base string
	switch {
	case strings.HasSuffix(name, upSuffix):
		base, up = strings.TrimSuffix(name, upSuffix), true
	case strings.HasSuffix(name, downSuffix):
		base = strings.TrimSuffix(name, downSuffix)
	default:
		return MigrationInfo{}, false, false
	}
	versionPart, namePart, found := strings.Cut(base, "_")
	if !found || namePart == "" {
		return MigrationInfo{}, false, false
	}
	version, err := strconv.ParseUint(versionPart, 10, 64)
	if err != nil {
		return MigrationInfo{}, false, false
	}
	return MigrationInfo{Version: uint(version), Name: namePart}, up, true
}
