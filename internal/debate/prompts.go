package debate

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// descriptionTruncation bounds a personality's listed description to its
// prompt's first line, truncated, mirroring
// original_source/backend/api/routes/personalities.py's
// get_available_personalities (first_line[:200] + "...").
const descriptionTruncation = 200

// PersonalityInfo describes one available personality for the discovery
// endpoints (GET /personalities, GET /personalities/debate).
type PersonalityInfo struct {
	Name        string
	Description string
	IsSystem    bool
}

// PromptLibrary implements PromptLoader by reading one prompt file per
// personality from a directory — each file's full contents become the
// personality's system prompt, and its first line becomes its listed
// description. Grounded on
// original_source/backend/api/routes/personalities.py's PROMPTS_DIR scan;
// unlike the original, which re-reads the directory on every request,
// this reads it once (on Load, or lazily on first use) and serves the
// parsed result from a mutex-guarded cache until Load is called again.
type PromptLibrary struct {
	dir string

	mu       sync.RWMutex
	prompts  map[string]string
	infos    []PersonalityInfo
	loadedAt bool
}

// NewPromptLibrary returns a PromptLibrary reading *.txt files from dir.
// Load must be called (directly, or implicitly via the first Prompt/List
// call) before use.
func NewPromptLibrary(dir string) *PromptLibrary {
	return &PromptLibrary{dir: dir}
}

// Load (re)reads every *.txt file in the library's directory. A missing
// directory is not an error — it yields an empty library, matching the
// original's "if not PROMPTS_DIR.exists(): return []" fallback.
func (l *PromptLibrary) Load() error {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		if os.IsNotExist(err) {
			l.mu.Lock()
			l.prompts = map[string]string{}
			l.infos = nil
			l.loadedAt = true
			l.mu.Unlock()
			return nil
		}
		return err
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".txt") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	prompts := make(map[string]string, len(names))
	infos := make([]PersonalityInfo, 0, len(names))
	for _, fileName := range names {
		name := strings.TrimSuffix(fileName, ".txt")
		body, err := os.ReadFile(filepath.Join(l.dir, fileName))
		if err != nil {
			continue // unreadable file: skip it, matching the original's try/except
		}
		content := string(body)
		prompts[name] = content
		infos = append(infos, PersonalityInfo{
			Name:        name,
			Description: firstLineTruncated(content),
			IsSystem:    name == PersonalityConsensusCheck || name == PersonalitySynthesizer,
		})
	}

	l.mu.Lock()
	l.prompts = prompts
	l.infos = infos
	l.loadedAt = true
	l.mu.Unlock()
	return nil
}

// Prompt implements PromptLoader.
func (l *PromptLibrary) Prompt(personality string) (string, bool) {
	l.mu.RLock()
	loaded := l.loadedAt
	l.mu.RUnlock()
	if !loaded {
		_ = l.Load()
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	p, ok := l.prompts[personality]
	return p, ok
}

// List returns every personality, optionally excluding system
// personalities (consensus_check, synthesizer) — the debateOnly flag
// mirrors the split between GET /personalities and GET /personalities/debate.
func (l *PromptLibrary) List(debateOnly bool) []PersonalityInfo {
	l.mu.RLock()
	loaded := l.loadedAt
	l.mu.RUnlock()
	if !loaded {
		_ = l.Load()
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]PersonalityInfo, 0, len(l.infos))
	for _, info := range l.infos {
		if debateOnly && info.IsSystem {
			continue
		}
		out = append(out, info)
	}
	return out
}

func firstLineTruncated(content string) string {
	firstLine := content
	if idx := strings.IndexByte(content, '\n'); idx >= 0 {
		firstLine = content[:idx]
	}
	firstLine = strings.TrimSpace(firstLine)
	if len(firstLine) > descriptionTruncation {
		return firstLine[:descriptionTruncation] + "..."
	}
	return firstLine
}
