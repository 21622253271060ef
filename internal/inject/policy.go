// SPDX-FileCopyrightText:  © 2025 modhost authors
// SPDX-License-Identifier:   MIT

package inject

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/samber/lo"
)

// Policy decides which newly created processes receive the engine.
//
// Each pattern field is a '|'-separated list of case-insensitive wildcard patterns ('*' and '?').
// A pattern containing a path separator is matched against the full image path, any other
// pattern against the file name only. Environment variables written as %NAME% are expanded.
type Policy struct {
	Include            string
	Exclude            string
	ThreadAttachExempt string
	IncludeCritical    bool
}

const (
	patternSeparator  = "|"
	defaultSystemRoot = `C:\Windows`
)

// processes whose failure takes down the session or the whole system
var criticalProcesses = []string{
	`%SystemRoot%\System32\smss.exe`,
	`%SystemRoot%\System32\csrss.exe`,
	`%SystemRoot%\System32\wininit.exe`,
	`%SystemRoot%\System32\services.exe`,
	`%SystemRoot%\System32\lsass.exe`,
	`%SystemRoot%\System32\lsaiso.exe`,
	`%SystemRoot%\System32\winlogon.exe`,
}

// ShouldSkipNewProcess returns true when the engine must not be injected into a process with the given image path.
// Exclusion wins over inclusion; an empty include list includes everything not excluded.
func (p Policy) ShouldSkipNewProcess(imagePath string) bool {
	if MatchPattern(p.Exclude, imagePath) {
		return true
	}
	if !p.IncludeCritical && isCriticalProcess(imagePath) {
		return true
	}
	if len(splitPatterns(p.Include)) == 0 {
		return false
	}
	return !MatchPattern(p.Include, imagePath)
}

// ShouldAttachExemptThread returns true when the process receives the engine without the thread attach step.
func (p Policy) ShouldAttachExemptThread(imagePath string) bool {
	return MatchPattern(p.ThreadAttachExempt, imagePath)
}

// MatchPattern returns true if any of the '|'-separated patterns matches the image path.
func MatchPattern(patterns string, imagePath string) bool {
	path := normalizePath(imagePath)
	fileName := path[strings.LastIndex(path, `\`)+1:]

	return lo.ContainsBy(splitPatterns(patterns), func(pattern string) bool {
		pattern = normalizePath(expandEnv(pattern))
		if strings.Contains(pattern, `\`) {
			return matchWildcard(pattern, path)
		}
		return matchWildcard(pattern, fileName)
	})
}

func isCriticalProcess(imagePath string) bool {
	return MatchPattern(strings.Join(criticalProcesses, patternSeparator), imagePath)
}

func splitPatterns(patterns string) []string {
	return lo.Compact(lo.Map(strings.Split(patterns, patternSeparator), func(pattern string, _ int) string {
		return strings.TrimSpace(pattern)
	}))
}

func normalizePath(path string) string {
	return strings.ToLower(strings.ReplaceAll(filepath.ToSlash(path), "/", `\`))
}

// expandEnv expands %NAME% references; unknown variables stay as written.
func expandEnv(pattern string) string {
	var b strings.Builder
	rest := pattern
	for {
		start := strings.Index(rest, "%")
		if start < 0 {
			break
		}
		end := strings.Index(rest[start+1:], "%")
		if end < 0 {
			break
		}
		end += start + 1

		name := rest[start+1 : end]
		value, ok := lookupEnv(name)
		b.WriteString(rest[:start])
		if ok {
			b.WriteString(value)
		} else {
			b.WriteString(rest[start : end+1])
		}
		rest = rest[end+1:]
	}
	b.WriteString(rest)
	return b.String()
}

func lookupEnv(name string) (string, bool) {
	if name == "" {
		return "", false
	}
	if value, ok := os.LookupEnv(name); ok {
		return value, true
	}
	if strings.EqualFold(name, "SystemRoot") {
		return defaultSystemRoot, true
	}
	return "", false
}

// matchWildcard matches '*' (any run, separators included) and '?' (exactly one character).
// Both inputs are expected to be lower case already.
func matchWildcard(pattern, value string) bool {
	p, v := []rune(pattern), []rune(value)
	pi, vi := 0, 0
	starPi, starVi := -1, 0

	for vi < len(v) {
		switch {
		case pi < len(p) && (p[pi] == '?' || p[pi] == v[vi]):
			pi++
			vi++
		case pi < len(p) && p[pi] == '*':
			starPi, starVi = pi, vi
			pi++
		case starPi >= 0:
			// let the last star swallow one more character
			starVi++
			pi, vi = starPi+1, starVi
		default:
			return false
		}
	}

	for pi < len(p) && p[pi] == '*' {
		pi++
	}
	return pi == len(p)
}
