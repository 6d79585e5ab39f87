package classify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/projectvak/contract-pipeline/constants"
	"github.com/projectvak/contract-pipeline/internal/common"
	"github.com/projectvak/contract-pipeline/internal/storage"
)

// summaryLimit caps how many folders the classifier prompt lists.
const summaryLimit = 15

// FolderInfo is one cached organized folder.
type FolderInfo struct {
	Name        string `json:"name"`
	Created     string `json:"created"`
	Description string `json:"description"`
	FileCount   int    `json:"file_count"`
}

// ScannedFolder is a level-one folder found under the organized prefix.
type ScannedFolder struct {
	Path      string
	Name      string
	FileCount int
}

// FolderManager tracks the organized folder tree (one folder per address)
// and keeps a JSON cache of it between runs.
type FolderManager struct {
	store     storage.Storage
	prefix    string
	cachePath string
	folders   map[string]FolderInfo
	now       func() time.Time
	logger    *slog.Logger
}

func NewFolderManager(store storage.Storage, prefix, cachePath string, logger *slog.Logger) *FolderManager {
	if logger == nil {
		logger = slog.Default()
	}
	if prefix == "" {
		prefix = constants.OrganizedPrefix
	}
	m := &FolderManager{
		store:     store,
		prefix:    storage.Clean(prefix),
		cachePath: cachePath,
		now:       time.Now,
		logger:    logger,
	}
	m.folders = m.loadCache()
	return m
}

// Prefix is the root of the organized tree.
func (m *FolderManager) Prefix() string { return m.prefix }

// Folders returns a copy of the cache.
func (m *FolderManager) Folders() map[string]FolderInfo {
	out := make(map[string]FolderInfo, len(m.folders))
	for k, v := range m.folders {
		out[k] = v
	}
	return out
}

func (m *FolderManager) loadCache() map[string]FolderInfo {
	folders := map[string]FolderInfo{}
	if m.cachePath == "" {
		return folders
	}
	b, err := os.ReadFile(m.cachePath)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			m.logger.Warn("folders.cache.read_error", "path", m.cachePath, "error", err)
		}
		return folders
	}
	if err := json.Unmarshal(b, &folders); err != nil {
		m.logger.Warn("folders.cache.corrupt", "path", m.cachePath, "error", err)
		return map[string]FolderInfo{}
	}
	return folders
}

func (m *FolderManager) saveCache() {
	if m.cachePath == "" {
		return
	}
	b, err := json.MarshalIndent(m.folders, "", "  ")
	if err != nil {
		m.logger.Warn("folders.cache.encode_error", "error", err)
		return
	}
	if dir := filepath.Dir(m.cachePath); dir != "" {
		_ = os.MkdirAll(dir, 0o755)
	}
	if err := os.WriteFile(m.cachePath, b, 0o644); err != nil {
		m.logger.Warn("folders.cache.save_error", "path", m.cachePath, "error", err)
	}
}

// Scan lists the level-one folders under the prefix with their file counts
// and adds unseen ones to the cache. A missing prefix yields no folders.
func (m *FolderManager) Scan(ctx context.Context) ([]ScannedFolder, error) {
	ok, err := m.store.Exists(ctx, m.prefix)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	entries, err := storage.ListAll(ctx, m.store, m.prefix, false)
	if err != nil {
		m.logger.Warn("folders.scan.error", "prefix", m.prefix, "error", err)
		m.saveCache()
		return nil, err
	}

	var found []ScannedFolder
	for _, e := range entries {
		if !e.IsDir {
			continue
		}
		count := 0
		if children, err := storage.ListAll(ctx, m.store, e.Path, false); err == nil {
			for _, c := range children {
				if !c.IsDir {
					count++
				}
			}
		}
		found = append(found, ScannedFolder{Path: e.Path, Name: e.Name, FileCount: count})
		if _, known := m.folders[e.Path]; !known {
			m.folders[e.Path] = FolderInfo{
				Name:        e.Name,
				Created:     m.now().Format(time.RFC3339),
				Description: "Auto-detected",
				FileCount:   count,
			}
		}
	}
	m.saveCache()
	m.logger.Debug("folders.scan.done", "folders", len(found))
	return found, nil
}

// Summary renders the known folders for the classifier prompt.
func (m *FolderManager) Summary() string {
	if len(m.folders) == 0 {
		return "No existing organized folders."
	}
	paths := make([]string, 0, len(m.folders))
	for p := range m.folders {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	lines := make([]string, 0, min(len(paths), summaryLimit))
	for _, p := range paths[:min(len(paths), summaryLimit)] {
		info := m.folders[p]
		desc := info.Description
		if desc == "" {
			desc = "no description"
		}
		lines = append(lines, fmt.Sprintf("- %s: %s (%d file(s))", strings.ReplaceAll(p, m.prefix, ""), desc, info.FileCount))
	}
	return strings.Join(lines, "\n")
}

// CreateFolder creates the sanitized folder and every missing ancestor and
// returns its full path.
func (m *FolderManager) CreateFolder(ctx context.Context, folderPath, description string) (string, error) {
	full := m.SanitizeFolderPath(folderPath)

	current := ""
	for _, part := range strings.Split(strings.TrimPrefix(full, "/"), "/") {
		current += "/" + part
		ok, err := m.store.Exists(ctx, current)
		if err != nil {
			return "", fmt.Errorf("check folder %s: %w", current, err)
		}
		if ok {
			continue
		}
		if err := m.store.CreateFolder(ctx, current); err != nil {
			return "", err
		}
		m.logger.Info("folders.created", "path", current)
	}

	if _, known := m.folders[full]; !known {
		m.folders[full] = FolderInfo{
			Name:        full[strings.LastIndex(full, "/")+1:],
			Created:     m.now().Format(time.RFC3339),
			Description: description,
		}
		m.saveCache()
	}
	return full, nil
}

// AddFile bumps the cached file count of a known folder.
func (m *FolderManager) AddFile(folder string) {
	info, ok := m.folders[folder]
	if !ok {
		return
	}
	info.FileCount++
	m.folders[folder] = info
	m.saveCache()
}

// SanitizeFolderPath maps a classifier folder onto the organized tree.
func (m *FolderManager) SanitizeFolderPath(p string) string {
	return SanitizeFolderPath(m.prefix, p)
}

var (
	reUnsafeFolder   = regexp.MustCompile(`[^\p{L}\p{N}_\s-]`)
	reUnsafeFilename = regexp.MustCompile(`[^\p{L}\p{N}_\s\-.]`)
	reUnsafeAddress  = regexp.MustCompile(`[^\p{L}\p{N}_-]`)
	reSpaces         = regexp.MustCompile(`\s+`)
	reUnderscores    = regexp.MustCompile(`_+`)
)

// SanitizeFolderPath strips the prefix if present, cleans every segment
// and re-roots the result under prefix. Nothing left means prefix/Overig.
func SanitizeFolderPath(prefix, p string) string {
	p = strings.TrimSpace(p)
	p = strings.TrimPrefix(p, prefix)

	var cleaned []string
	for _, part := range strings.Split(p, "/") {
		part = reUnsafeFolder.ReplaceAllString(part, "")
		part = reSpaces.ReplaceAllString(part, "_")
		part = reUnderscores.ReplaceAllString(part, "_")
		part = strings.Trim(part, "_")
		if part != "" {
			cleaned = append(cleaned, part)
		}
	}
	if len(cleaned) == 0 {
		return prefix + "/" + constants.FallbackFolder
	}
	return prefix + "/" + strings.Join(cleaned, "/")
}

// SanitizeSuggestedFilename keeps the base name, drops unsafe characters
// and forces a .pdf extension. fallback is returned when nothing usable
// remains.
func SanitizeSuggestedFilename(suggested, fallback string) string {
	suggested = strings.TrimSpace(suggested)
	if suggested == "" {
		return fallback
	}
	parts := strings.Split(strings.ReplaceAll(suggested, "\\", "/"), "/")
	name := parts[len(parts)-1]
	name = reUnsafeFilename.ReplaceAllString(name, "")
	name = reSpaces.ReplaceAllString(name, "_")
	name = reUnderscores.ReplaceAllString(name, "_")
	name = strings.Trim(name, "_.")
	if name == "" {
		return fallback
	}
	if !strings.HasSuffix(strings.ToLower(name), ".pdf") {
		name += ".pdf"
	}
	return common.Truncate(name, 200)
}

// FallbackFilenameFromFolder names a document after its address folder:
// Kerkstraat_10 -> Kerkstraat_10_document.pdf.
func FallbackFilenameFromFolder(folderPath, _ string) string {
	var parts []string
	for _, p := range strings.Split(strings.ReplaceAll(strings.TrimSpace(folderPath), "\\", "/"), "/") {
		if p != "" {
			parts = append(parts, p)
		}
	}
	addr := constants.UnknownAddress
	if len(parts) > 0 {
		addr = parts[len(parts)-1]
	}
	addr = strings.Trim(reUnsafeAddress.ReplaceAllString(addr, "_"), "_")
	if addr == "" {
		addr = constants.UnknownAddress
	}
	return addr + "_document.pdf"
}
