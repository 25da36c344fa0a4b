package runner

import (
	"bufio"
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/go-enry/go-enry/v2"

	"straitjacket/internal/config"
)

// StdinPath names standard input on the command line.
const StdinPath = "-"

// Matcher decides which paths under a directory are Python sources.
type Matcher struct {
	include       *regexp.Regexp
	exclude       *regexp.Regexp
	extendExclude *regexp.Regexp
	shebang       bool
	skipVendored  bool
}

// NewMatcher compiles the patterns in files.
func NewMatcher(files config.FilesConfig) (*Matcher, error) {
	m := &Matcher{shebang: files.Shebang, skipVendored: files.SkipVendored}
	var err error
	if m.include, err = compile("include", files.Include); err != nil {
		return nil, err
	}
	if m.exclude, err = compile("exclude", files.Exclude); err != nil {
		return nil, err
	}
	if m.extendExclude, err = compile("extend_exclude", files.ExtendExclude); err != nil {
		return nil, err
	}
	return m, nil
}

func compile(name, expr string) (*regexp.Regexp, error) {
	if expr == "" {
		return nil, nil
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid %s pattern: %w", name, err)
	}
	return re, nil
}

// excluded matches rel, a slash-separated path relative to the walk root.
// Directories are matched with a trailing slash.
func (m *Matcher) excluded(rel string, dir bool) bool {
	key := "/" + rel
	if dir {
		key += "/"
	}
	if m.exclude != nil && m.exclude.MatchString(key) {
		return true
	}
	if m.extendExclude != nil && m.extendExclude.MatchString(key) {
		return true
	}
	return dir && m.skipVendored && enry.IsVendor(rel+"/")
}

// included reports whether the file at path (rel from the walk root)
// should be formatted.
func (m *Matcher) included(path, rel string) bool {
	if m.include != nil {
		if m.include.MatchString("/" + rel) {
			return true
		}
	} else if lang, _ := enry.GetLanguageByExtension(path); lang == "Python" {
		return true
	}
	if !m.shebang || filepath.Ext(path) != "" {
		return false
	}
	line, err := firstLine(path)
	if err != nil {
		return false
	}
	for _, lang := range enry.GetLanguagesByShebang(path, line, nil) {
		if lang == "Python" {
			return true
		}
	}
	return false
}

func firstLine(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	line, err := bufio.NewReader(f).ReadSlice('\n')
	if err != nil && len(line) == 0 {
		return nil, err
	}
	if !bytes.HasPrefix(line, []byte("#!")) {
		return nil, fmt.Errorf("no shebang")
	}
	return line, nil
}

// Discover expands paths into the files to format. Files named explicitly
// are always kept; directories are walked and filtered by files.
func Discover(paths []string, files config.FilesConfig) ([]string, error) {
	m, err := NewMatcher(files)
	if err != nil {
		return nil, err
	}
	return m.Discover(paths)
}

// Discover expands paths using m. The result keeps the order of paths and
// holds no duplicates.
func (m *Matcher) Discover(paths []string) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}

	for _, root := range paths {
		if root == StdinPath {
			add(root)
			continue
		}
		info, err := os.Stat(root)
		if err != nil {
			return nil, fmt.Errorf("invalid path %q: %w", root, err)
		}
		if !info.IsDir() {
			add(filepath.Clean(root))
			continue
		}

		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			rel, err := filepath.Rel(root, path)
			if err != nil {
				return err
			}
			if rel == "." {
				return nil
			}
			rel = filepath.ToSlash(rel)
			if d.IsDir() {
				if m.excluded(rel, true) {
					return filepath.SkipDir
				}
				return nil
			}
			if !d.Type().IsRegular() || m.excluded(rel, false) {
				return nil
			}
			if m.included(path, rel) {
				add(path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to walk %s: %w", root, err)
		}
	}
	return out, nil
}

// Match reports whether a walk of root would pick up the file at path.
func (m *Matcher) Match(root, path string) bool {
	rel, ok := relative(root, path)
	if !ok {
		return false
	}
	if dir := pathDir(rel); dir != "" && m.ExcludesDir(root, filepath.Join(root, filepath.FromSlash(dir))) {
		return false
	}
	return !m.excluded(rel, false) && m.included(path, rel)
}

// ExcludesDir reports whether a walk of root would skip dir or one of its
// parents.
func (m *Matcher) ExcludesDir(root, dir string) bool {
	rel, ok := relative(root, dir)
	if !ok {
		return rel != "."
	}
	parts := strings.Split(rel, "/")
	for i := range parts {
		if m.excluded(strings.Join(parts[:i+1], "/"), true) {
			return true
		}
	}
	return false
}

func relative(root, path string) (string, bool) {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return "", false
	}
	rel = filepath.ToSlash(rel)
	if rel == "." || rel == ".." || strings.HasPrefix(rel, "../") {
		return rel, false
	}
	return rel, true
}

func pathDir(rel string) string {
	if i := strings.LastIndexByte(rel, '/'); i >= 0 {
		return rel[:i]
	}
	return ""
}
