// Package artifact discovers migration files on disk and scaffolds new ones.
//
// An artifact's identifier is its file name, e.g. 202401010000_add_users.cql.
// The leading UTC timestamp makes lexical order equal creation order, which
// is the order migrations are executed in.
package artifact

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/benbjohnson/clock"

	"github.com/galleyhq/galley"
)

// TimestampLayout is the identifier prefix layout (YYYYMMDDHHMM).
const TimestampLayout = "200601021504"

// Kind selects how an artifact is executed.
type Kind int

const (
	// KindStatement is a file of semicolon-separated CQL statements.
	KindStatement Kind = iota
	// KindProcedural is a script run as its own process.
	KindProcedural
)

func (k Kind) String() string {
	switch k {
	case KindStatement:
		return "statement"
	case KindProcedural:
		return "procedural"
	default:
		return "unknown"
	}
}

// Artifact is a single migration file.
type Artifact struct {
	// ID is the file name and the ledger primary key.
	ID   string
	Path string
	Kind Kind
}

// Read returns the artifact's contents.
func (a Artifact) Read() ([]byte, error) {
	b, err := os.ReadFile(a.Path)
	if err != nil {
		return nil, fmt.Errorf("reading migration %s: %w", a.ID, err)
	}
	return b, nil
}

var identifierPattern = regexp.MustCompile(`^\d{12}_.+`)

// WellFormed reports whether id starts with a YYYYMMDDHHMM_ prefix.
func WellFormed(id string) bool {
	return identifierPattern.MatchString(id)
}

// Repository lists and creates artifacts of one kind under Root.
type Repository struct {
	Root      string
	Extension string
	Kind      Kind

	// Clock supplies the timestamp for Create. Defaults to the wall clock.
	Clock clock.Clock
}

// NewRepository returns a Repository for files ending in ext under root.
func NewRepository(root, ext string, kind Kind) *Repository {
	return &Repository{Root: root, Extension: ext, Kind: kind, Clock: clock.New()}
}

// List returns the artifacts under Root whose name ends in Extension,
// sorted ascending by identifier. Directories are never returned.
// It fails with galley.ErrArtifactNotFound if Root does not exist.
func (r *Repository) List() ([]Artifact, error) {
	entries, err := os.ReadDir(r.Root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", galley.ErrArtifactNotFound, r.Root)
		}
		return nil, fmt.Errorf("listing %s: %w", r.Root, err)
	}

	artifacts := make([]Artifact, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), r.Extension) {
			continue
		}
		artifacts = append(artifacts, Artifact{
			ID:   e.Name(),
			Path: filepath.Join(r.Root, e.Name()),
			Kind: r.Kind,
		})
	}

	sort.Slice(artifacts, func(i, j int) bool {
		return artifacts[i].ID < artifacts[j].ID
	})
	return artifacts, nil
}

// IDs returns the identifiers of List.
func (r *Repository) IDs() ([]string, error) {
	artifacts, err := r.List()
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(artifacts))
	for i, a := range artifacts {
		ids[i] = a.ID
	}
	return ids, nil
}

// Create writes an empty artifact named <timestamp>_<name><ext> and returns its path.
func (r *Repository) Create(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: migration name is required (e.g. --name=add_users_table)", galley.ErrInvalidArgument)
	}
	if strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("%w: migration name %q must not contain path separators", galley.ErrInvalidArgument, name)
	}

	if _, err := os.Stat(r.Root); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %s (run setup first)", galley.ErrArtifactNotFound, r.Root)
		}
		return "", err
	}

	c := r.Clock
	if c == nil {
		c = clock.New()
	}
	id := c.Now().UTC().Format(TimestampLayout) + "_" + name + r.Extension
	path := filepath.Join(r.Root, id)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return "", fmt.Errorf("%w: %s", galley.ErrAlreadyExists, path)
		}
		return "", fmt.Errorf("creating migration: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("creating migration: %w", err)
	}
	return path, nil
}
