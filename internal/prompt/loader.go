// Package prompt loads the instruction templates used by the reasoning
// capabilities. It has three layers:
//
//   - L1: output format rules derived from Go types (see package structured)
//   - L2: capability instructions in prompts/*.md (embedded by default, overridable at runtime)
//   - L3: user rules in rules.md (runtime only, appended to the final answer instructions)
//
// The Loader is safe for concurrent use.
package prompt

import (
	"embed"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Template names.
const (
	ReasoningItem = "reasoning_item.md"
	Completeness  = "completeness.md"
	Redundancy    = "redundancy.md"
	Similarity    = "similarity.md"
	FinalResponse = "final_response.md"
)

// defaultPrompts embeds the L2 templates shipped with the binary.
//
//go:embed prompts/*
var defaultPrompts embed.FS

// promptInjectionPatterns contains lowercased substrings that indicate prompt injection attempts.
// Lines matching any pattern are dropped from L3 user rules with a warning.
var promptInjectionPatterns = []string{
	"ignore previous",
	"ignore above",
	"ignore all previous",
	"disregard all",
	"disregard previous",
	"forget previous",
	"forget all previous",
	"override instructions",
	"override previous",
	"new instructions:",
	"from now on",
}

// Loader reads L2 templates and the L3 user rules file.
// Contents are cached after the first read; call Reload to invalidate.
type Loader struct {
	promptsDir string // runtime override directory (may be empty)
	rulesPath  string // path to L3 rules.md (may be empty)

	mu    sync.RWMutex
	cache map[string]string
}

// NewLoader creates a Loader. Both paths may be empty: an empty promptsDir
// uses only the embedded templates, an empty rulesPath disables user rules.
func NewLoader(promptsDir, rulesPath string) *Loader {
	return &Loader{
		promptsDir: promptsDir,
		rulesPath:  rulesPath,
		cache:      make(map[string]string),
	}
}

// Load returns the named template.
//
// Priority:
//  1. Disk file at promptsDir/name
//  2. Embedded default at prompts/name
//  3. Empty string
//
// A disk read error other than "not found" logs a warning and falls back to
// the embedded default.
func (l *Loader) Load(name string) string {
	return l.cached("l2:"+name, func() string { return l.loadUncached(name) })
}

// Render loads the named template and substitutes every {{KEY}} in vars.
// Placeholders without a value are removed.
func (l *Loader) Render(name string, vars map[string]string) string {
	content := l.Load(name)
	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		content = strings.ReplaceAll(content, "{{"+k+"}}", vars[k])
	}
	return stripPlaceholders(content)
}

// LoadUserRules reads the L3 rules file with injection lines removed.
// Returns "" if the file does not exist or rulesPath is empty.
func (l *Loader) LoadUserRules() string {
	return l.cached("l3:rules", l.loadUserRulesUncached)
}

// Reload clears the cache so later calls re-read files from disk.
func (l *Loader) Reload() {
	l.mu.Lock()
	l.cache = make(map[string]string)
	l.mu.Unlock()
	log.Printf("[Prompt] Cache cleared")
}

// cached returns the value stored under key, computing it with load on a miss.
func (l *Loader) cached(key string, load func() string) string {
	l.mu.RLock()
	if val, ok := l.cache[key]; ok {
		l.mu.RUnlock()
		return val
	}
	l.mu.RUnlock()

	content := load()

	// Double-check so two goroutines racing through a miss store one value.
	l.mu.Lock()
	defer l.mu.Unlock()
	if val, ok := l.cache[key]; ok {
		return val
	}
	l.cache[key] = content
	return content
}

func (l *Loader) loadUncached(name string) string {
	if l.promptsDir != "" {
		diskPath := filepath.Join(l.promptsDir, name)
		data, err := os.ReadFile(diskPath)
		if err == nil {
			return string(data)
		}
		if !os.IsNotExist(err) {
			log.Printf("[Prompt] Warning: read %q failed: %v; falling back to embedded default", diskPath, err)
		}
	}

	data, err := fs.ReadFile(defaultPrompts, "prompts/"+name)
	if err == nil {
		return string(data)
	}
	return ""
}

func (l *Loader) loadUserRulesUncached() string {
	if l.rulesPath == "" {
		return ""
	}
	data, err := os.ReadFile(l.rulesPath)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("[Prompt] Warning: read user rules %q failed: %v", l.rulesPath, err)
		}
		return ""
	}
	return strings.TrimSpace(filterDangerousLines(string(data)))
}

// filterDangerousLines drops lines that match known prompt-injection patterns.
func filterDangerousLines(content string) string {
	lines := strings.Split(content, "\n")
	safe := make([]string, 0, len(lines))
	for _, line := range lines {
		lower := strings.ToLower(line)
		dropped := false
		for _, pattern := range promptInjectionPatterns {
			if strings.Contains(lower, pattern) {
				log.Printf("[Prompt] Warning: user rules line dropped (injection pattern %q detected): %q", pattern, line)
				dropped = true
				break
			}
		}
		if !dropped {
			safe = append(safe, line)
		}
	}
	return strings.Join(safe, "\n")
}

// stripPlaceholders removes any {{KEY}} left after rendering.
func stripPlaceholders(s string) string {
	for {
		start := strings.Index(s, "{{")
		if start < 0 {
			return s
		}
		end := strings.Index(s[start:], "}}")
		if end < 0 {
			return s
		}
		s = s[:start] + s[start+end+2:]
	}
}
