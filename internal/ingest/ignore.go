package ingest

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
)

// ignoreFiles are read from the root of every walked directory.
var ignoreFiles = []string{".ragignore", ".gitignore"}

// ignoreRules holds exclude patterns relative to a walk root.
type ignoreRules struct {
	patterns []string
}

// loadIgnore reads the ignore files found in root. Missing files are skipped.
func loadIgnore(root string) (*ignoreRules, error) {
	rules := &ignoreRules{}
	seen := make(map[string]bool)
	for _, name := range ignoreFiles {
		patterns, err := readIgnoreFile(filepath.Join(root, name))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
		for _, p := range patterns {
			if !seen[p] {
				seen[p] = true
				rules.patterns = append(rules.patterns, p)
			}
		}
	}
	return rules, nil
}

func readIgnoreFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var patterns []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if p := parseIgnoreLine(scanner.Text()); p != "" {
			patterns = append(patterns, p)
		}
	}
	return patterns, scanner.Err()
}

// parseIgnoreLine returns the pattern on a gitignore line, or "" for blank
// lines, comments and negations (not supported).
func parseIgnoreLine(line string) string {
	line = strings.TrimRight(line, " \t")
	if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "!") {
		return ""
	}
	line = strings.TrimPrefix(line, "/")
	if strings.HasSuffix(line, "/") {
		line += "**"
	}
	return line
}

// match reports whether rel, a slash-separated path relative to the walk
// root, is excluded. Patterns without a slash match any path component;
// "dir/**" excludes everything below dir.
func (r *ignoreRules) match(rel string, isDir bool) bool {
	if r == nil || rel == "." {
		return false
	}
	parts := strings.Split(rel, "/")
	dirs := parts
	if !isDir {
		dirs = parts[:len(parts)-1]
	}
	for _, p := range r.patterns {
		if prefix, ok := strings.CutSuffix(p, "/**"); ok {
			if (isDir && rel == prefix) || strings.HasPrefix(rel, prefix+"/") {
				return true
			}
			if !strings.Contains(prefix, "/") && containsComponent(dirs, prefix) {
				return true
			}
			continue
		}
		if strings.Contains(p, "/") {
			if ok, _ := filepath.Match(p, rel); ok {
				return true
			}
			continue
		}
		if containsComponent(parts, p) {
			return true
		}
	}
	return false
}

func containsComponent(parts []string, pattern string) bool {
	for _, part := range parts {
		if ok, _ := filepath.Match(pattern, part); ok {
			return true
		}
	}
	return false
}
