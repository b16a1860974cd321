// Package spaces manages the on-disk registry of Perplexity spaces
// (collections). The registry maps human names to space UUIDs so callers can
// reference "trading" instead of the UUID.
package spaces

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	json5 "github.com/yosuke-furukawa/json5/encoding/json5"
)

const (
	defaultDirName  = ".config/perplexity-bridge"
	defaultFileName = "spaces.json"
)

// File is the on-disk registry format.
type File struct {
	Version int               `json:"version"`
	Spaces  map[string]string `json:"spaces"`
}

// ResolveStorePath resolves the registry path. Empty falls back to the user
// config directory, or the temp dir when no home exists.
func ResolveStorePath(storePath string) string {
	trimmed := strings.TrimSpace(storePath)
	if trimmed != "" {
		if strings.HasPrefix(trimmed, "~") {
			if home, err := os.UserHomeDir(); err == nil && strings.TrimSpace(home) != "" {
				return filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
			}
		}
		return filepath.Clean(trimmed)
	}
	home, err := os.UserHomeDir()
	if err != nil || strings.TrimSpace(home) == "" {
		return filepath.Join(os.TempDir(), "perplexity-bridge", defaultFileName)
	}
	return filepath.Join(home, defaultDirName, defaultFileName)
}

// Load reads the registry, tolerating missing or unparseable files. These
// files tend to be hand-edited, hence json5.
func Load(storePath string) (File, error) {
	data, err := os.ReadFile(storePath)
	if err != nil {
		return File{Version: 1, Spaces: map[string]string{}}, nil
	}
	var parsed File
	if err := json5.Unmarshal(data, &parsed); err != nil {
		return File{Version: 1, Spaces: map[string]string{}}, nil
	}
	if parsed.Version == 0 {
		parsed.Version = 1
	}
	if parsed.Spaces == nil {
		parsed.Spaces = map[string]string{}
	}
	return parsed, nil
}

// Save writes the registry atomically and keeps a .bak copy.
func Save(storePath string, file File) error {
	if file.Version == 0 {
		file.Version = 1
	}
	if err := os.MkdirAll(filepath.Dir(storePath), 0o755); err != nil {
		return err
	}
	payload, err := json5.MarshalIndent(file, "", "  ")
	if err != nil {
		return err
	}
	tmp := storePath + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, storePath); err != nil {
		return err
	}
	_ = os.WriteFile(storePath+".bak", payload, 0o644)
	return nil
}

// Add records a name → UUID mapping and saves the registry.
func Add(storePath, name, spaceUUID string) error {
	storePath = ResolveStorePath(storePath)
	file, err := Load(storePath)
	if err != nil {
		return err
	}
	file.Spaces[name] = spaceUUID
	return Save(storePath, file)
}

// Resolve turns a space name or UUID into a UUID. A value that already parses
// as a UUID passes through; otherwise it is looked up by name.
func Resolve(storePath, nameOrUUID string) (string, bool) {
	trimmed := strings.TrimSpace(nameOrUUID)
	if trimmed == "" {
		return "", false
	}
	if _, err := uuid.Parse(trimmed); err == nil {
		return trimmed, true
	}
	file, err := Load(ResolveStorePath(storePath))
	if err != nil {
		return "", false
	}
	spaceUUID, ok := file.Spaces[trimmed]
	return spaceUUID, ok
}

// Names returns the registered space names, sorted.
func Names(storePath string) []string {
	file, err := Load(ResolveStorePath(storePath))
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(file.Spaces))
	for name := range file.Spaces {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
