package pipeline

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"regexp"
	"strings"
)

// Loader reads a theme file by path
type Loader func(ctx context.Context, path string) ([]byte, error)

// ErrIncludeCycle is returned when a theme includes itself, directly or not
var ErrIncludeCycle = errors.New("include cycle")

var (
	importRegex  = regexp.MustCompile(`^\s*import\s+"([^"]+)"\s*$`)
	includeRegex = regexp.MustCompile(`^\s*include\s+"([^"]+)"\s*$`)
	defRegex     = regexp.MustCompile(`^\s*def\s+(\w+)`)
	edefRegex    = regexp.MustCompile(`^\s*edef\s*$`)
)

// ImportResolver inlines decksh import and include statements so theme markup
// can be processed without file system access.
//
//   - import "f" inlines the def/edef block of f, once per function name
//   - include "f" inlines all of f, expanded recursively
//
// Relative paths resolve against the directory of the file holding the statement.
type ImportResolver struct {
	load  Loader
	defs  map[string]bool
	stack []string
}

// NewImportResolver creates a resolver reading through load
func NewImportResolver(load Loader) *ImportResolver {
	return &ImportResolver{load: load, defs: make(map[string]bool)}
}

// Expand returns source with every import and include inlined
func (r *ImportResolver) Expand(ctx context.Context, source []byte, sourcePath string) ([]byte, error) {
	for _, p := range r.stack {
		if p == sourcePath {
			return nil, fmt.Errorf("%w: %s", ErrIncludeCycle, strings.Join(append(r.stack, sourcePath), " -> "))
		}
	}
	r.stack = append(r.stack, sourcePath)
	defer func() { r.stack = r.stack[:len(r.stack)-1] }()

	var out bytes.Buffer
	sc := bufio.NewScanner(bytes.NewReader(source))
	for sc.Scan() {
		line := sc.Text()

		if m := importRegex.FindStringSubmatch(line); m != nil {
			data, err := r.load(ctx, resolve(m[1], sourcePath))
			if err != nil {
				return nil, fmt.Errorf("import %q: %w", m[1], err)
			}
			def, name, err := firstDef(data)
			if err != nil {
				return nil, fmt.Errorf("import %q: %w", m[1], err)
			}
			if !r.defs[name] {
				r.defs[name] = true
				out.WriteString(def)
				out.WriteByte('\n')
			}
			continue
		}

		if m := includeRegex.FindStringSubmatch(line); m != nil {
			p := resolve(m[1], sourcePath)
			data, err := r.load(ctx, p)
			if err != nil {
				return nil, fmt.Errorf("include %q: %w", m[1], err)
			}
			expanded, err := r.Expand(ctx, data, p)
			if err != nil {
				return nil, fmt.Errorf("include %q: %w", m[1], err)
			}
			out.Write(expanded)
			continue
		}

		out.WriteString(line)
		out.WriteByte('\n')
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan %s: %w", sourcePath, err)
	}
	return out.Bytes(), nil
}

// resolve joins a relative statement path onto the including file's directory
func resolve(p, from string) string {
	if path.IsAbs(p) {
		return p
	}
	return path.Join(path.Dir(from), p)
}

// firstDef returns the first def/edef block of src and its function name
func firstDef(src []byte) (string, string, error) {
	var block strings.Builder
	var name string
	sc := bufio.NewScanner(bytes.NewReader(src))
	for sc.Scan() {
		line := sc.Text()
		if m := defRegex.FindStringSubmatch(line); m != nil {
			if name != "" {
				return "", "", fmt.Errorf("nested def in %q", name)
			}
			name = m[1]
		}
		if name == "" {
			continue
		}
		block.WriteString(line)
		if edefRegex.MatchString(line) {
			return block.String(), name, nil
		}
		block.WriteByte('\n')
	}
	if err := sc.Err(); err != nil {
		return "", "", err
	}
	if name != "" {
		return "", "", fmt.Errorf("def %q is never closed", name)
	}
	return "", "", errors.New("no def block found")
}

// HasImports reports whether source holds import or include statements
func HasImports(source []byte) bool {
	sc := bufio.NewScanner(bytes.NewReader(source))
	for sc.Scan() {
		if importRegex.MatchString(sc.Text()) || includeRegex.MatchString(sc.Text()) {
			return true
		}
	}
	return false
}

// StorageLoader reads theme files from anything with a Get by key
func StorageLoader(storage interface {
	Get(ctx context.Context, key string) (io.ReadCloser, error)
}) Loader {
	return func(ctx context.Context, p string) ([]byte, error) {
		rc, err := storage.Get(ctx, strings.TrimPrefix(p, "/"))
		if err != nil {
			return nil, fmt.Errorf("storage get failed: %w", err)
		}
		defer rc.Close()
		return io.ReadAll(rc)
	}
}

// LoadTheme reads the theme at path and expands its imports
func LoadTheme(ctx context.Context, load Loader, path string) ([]byte, error) {
	if path == "" {
		return nil, nil
	}
	data, err := load(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("load theme %s: %w", path, err)
	}
	if !HasImports(data) {
		return data, nil
	}
	return NewImportResolver(load).Expand(ctx, data, path)
}
