// Package preamble builds the environment preamble (spec.md §4.I, §6):
// the synthetic user/model turn pair seeded once per chat that gives
// the model date, OS, working directory, and a bounded folder listing.
//
// Grounded on original_source/packages/core's file_discovery.py (the
// .gitignore/.geminiignore double-exclusion and the .git/node_modules/
// dist hardcoded exclusions, supplemented into this spec per
// SPEC_FULL.md's SUPPLEMENTED FEATURES section) and the teacher's own
// date/OS/cwd-stamped system-prompt preambles scattered through
// internal/agent/runtime.go; folder walking uses only the standard
// library since no pack repo carries a gitignore-matching dependency.
package preamble

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/nexuscore/agentcore/pkg/content"
)

// MaxFolderEntries bounds the folder listing per spec.md §6.
const MaxFolderEntries = 200

var hardcodedExclusions = map[string]bool{
	".git":         true,
	"node_modules": true,
	"dist":         true,
}

// Build constructs the environment preamble as a {user, model} Content
// pair: a user turn stating date/OS/cwd/folder-listing, acknowledged by
// a fixed model turn, matching the teacher's convention of seeding a
// chat with a synthetic exchange rather than a system-only preamble.
func Build(workDir string, now time.Time) []content.Content {
	listing := ListFolder(workDir, MaxFolderEntries)

	var b strings.Builder
	fmt.Fprintf(&b, "Today's date is %s.\n", now.Format("2006-01-02"))
	fmt.Fprintf(&b, "Operating system: %s/%s.\n", runtime.GOOS, runtime.GOARCH)
	fmt.Fprintf(&b, "Working directory: %s.\n", workDir)
	if len(listing) > 0 {
		b.WriteString("Folder structure (truncated):\n")
		for _, entry := range listing {
			fmt.Fprintf(&b, "- %s\n", entry)
		}
	}

	return []content.Content{
		{Role: content.RoleUser, Parts: []content.Part{content.TextPart(b.String())}},
		{Role: content.RoleModel, Parts: []content.Part{content.TextPart("Acknowledged.")}},
	}
}

// ListFolder walks root and returns up to max relative paths, excluding
// .git, node_modules, dist, and anything matched by a .gitignore or
// .geminiignore file found along the walk (spec.md §6; double-exclusion
// behavior confirmed against original_source/ per the grounding note
// above).
func ListFolder(root string, max int) []string {
	patterns := loadIgnorePatterns(root, ".gitignore")
	patterns = append(patterns, loadIgnorePatterns(root, ".geminiignore")...)

	var out []string
	_ = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil //nolint:nilerr // best-effort listing, unreadable entries are simply skipped
		}
		if path == root {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		base := filepath.Base(rel)
		if hardcodedExclusions[base] {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if matchesAny(patterns, rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if len(out) >= max {
			return filepath.SkipAll
		}
		entry := rel
		if d.IsDir() {
			entry += "/"
		}
		out = append(out, entry)
		return nil
	})
	sort.Strings(out)
	if len(out) > max {
		out = out[:max]
	}
	return out
}

func loadIgnorePatterns(root, name string) []string {
	f, err := os.Open(filepath.Join(root, name)) //nolint:gosec // root is operator-provided working directory
	if err != nil {
		return nil
	}
	defer f.Close()

	var patterns []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, strings.TrimSuffix(line, "/"))
	}
	return patterns
}

func matchesAny(patterns []string, rel string) bool {
	base := filepath.Base(rel)
	for _, p := range patterns {
		if ok, _ := filepath.Match(p, base); ok {
			return true
		}
		if ok, _ := filepath.Match(p, rel); ok {
			return true
		}
		if strings.HasPrefix(rel, p+string(filepath.Separator)) {
			return true
		}
	}
	return false
}
