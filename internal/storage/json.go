package storage

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/wirecat/wirecat/internal/descriptor"
	"github.com/wirecat/wirecat/internal/domain"
)

const (
	requestsDir    = "requests"
	recentFile     = "recent.json"
	historyFile    = "history.json"
	maxRecent      = 10
	filePermission = 0644
	dirPermission  = 0755
)

// JSONRepository implements Repository using JSON files.
type JSONRepository struct {
	basePath   string
	maxHistory int
	logger     *slog.Logger
}

// NewJSONRepository creates a new JSON-based storage repository. maxHistory
// caps persisted history entries; zero keeps everything.
func NewJSONRepository(basePath string, maxHistory int, logger *slog.Logger) *JSONRepository {
	return &JSONRepository{
		basePath:   basePath,
		maxHistory: maxHistory,
		logger:     logger,
	}
}

// SaveRequest saves a named request descriptor to a JSON file.
func (r *JSONRepository) SaveRequest(name string, req descriptor.RequestDescriptor) error {
	if err := validateRequestName(name); err != nil {
		return fmt.Errorf("invalid request name: %w", err)
	}
	if err := r.ensureRequestsDir(); err != nil {
		return fmt.Errorf("ensure requests directory: %w", err)
	}

	path := r.requestPath(name)
	if err := r.verifyPathInRequestsDir(path); err != nil {
		return err
	}
	data, err := json.MarshalIndent(req, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	if err := atomicWriteFile(path, data, filePermission); err != nil {
		return fmt.Errorf("write request file: %w", err)
	}

	r.logger.Debug("saved request",
		slog.String("name", name),
		slog.String("path", path))

	return nil
}

// LoadRequest loads a named request descriptor from a JSON file.
func (r *JSONRepository) LoadRequest(name string) (*descriptor.RequestDescriptor, error) {
	if err := validateRequestName(name); err != nil {
		return nil, fmt.Errorf("invalid request name: %w", err)
	}
	path := r.requestPath(name)
	if err := r.verifyPathInRequestsDir(path); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("request %q not found", name)
		}
		return nil, fmt.Errorf("read request file: %w", err)
	}

	var req descriptor.RequestDescriptor
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("unmarshal request: %w", err)
	}

	r.logger.Debug("loaded request",
		slog.String("name", name),
		slog.String("path", path))

	return &req, nil
}

// ListRequests returns names of all saved requests.
func (r *JSONRepository) ListRequests() ([]string, error) {
	requestsPath := filepath.Join(r.basePath, requestsDir)

	// Missing directory means nothing saved yet, not an error.
	if _, err := os.Stat(requestsPath); os.IsNotExist(err) {
		return []string{}, nil
	}

	entries, err := os.ReadDir(requestsPath)
	if err != nil {
		return nil, fmt.Errorf("read requests directory: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if filepath.Ext(entry.Name()) == ".json" {
			names = append(names, strings.TrimSuffix(entry.Name(), ".json"))
		}
	}

	r.logger.Debug("listed requests", slog.Int("count", len(names)))
	return names, nil
}

// DeleteRequest removes a saved request file.
func (r *JSONRepository) DeleteRequest(name string) error {
	if err := validateRequestName(name); err != nil {
		return fmt.Errorf("invalid request name: %w", err)
	}
	path := r.requestPath(name)
	if err := r.verifyPathInRequestsDir(path); err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("request %q not found", name)
		}
		return fmt.Errorf("delete request file: %w", err)
	}

	r.logger.Debug("deleted request", slog.String("name", name))
	return nil
}

// SaveRecentTarget adds a target to the recent list, deduplicating by URL
// and protocol and keeping the newest first.
func (r *JSONRepository) SaveRecentTarget(target domain.Target) error {
	if err := r.ensureBaseDir(); err != nil {
		return fmt.Errorf("ensure base directory: %w", err)
	}

	recent, err := r.loadRecentList()
	if err != nil {
		return fmt.Errorf("load recent targets: %w", err)
	}

	recent = removeDuplicateTarget(recent, target)
	recent = append([]domain.Target{target}, recent...)
	if len(recent) > maxRecent {
		recent = recent[:maxRecent]
	}

	if err := r.saveRecentList(recent); err != nil {
		return fmt.Errorf("save recent targets: %w", err)
	}

	r.logger.Debug("saved recent target", slog.String("url", target.URL))
	return nil
}

// GetRecentTargets returns the list of recent targets.
func (r *JSONRepository) GetRecentTargets() ([]domain.Target, error) {
	recent, err := r.loadRecentList()
	if err != nil {
		return nil, fmt.Errorf("load recent targets: %w", err)
	}
	return recent, nil
}

// ClearRecentTargets removes all recent targets.
func (r *JSONRepository) ClearRecentTargets() error {
	if err := os.Remove(r.recentPath()); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("delete recent targets file: %w", err)
	}

	r.logger.Debug("cleared recent targets")
	return nil
}

// AddHistoryEntry prepends a history entry. Credentials in the serialized
// request are redacted before the entry touches disk.
func (r *JSONRepository) AddHistoryEntry(entry domain.HistoryEntry) error {
	if err := r.ensureBaseDir(); err != nil {
		return fmt.Errorf("ensure base directory: %w", err)
	}

	entry.Request = RedactRequestJSON(entry.Request)

	history, err := r.loadHistoryList()
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}

	history = append([]domain.HistoryEntry{entry}, history...)
	if r.maxHistory > 0 && len(history) > r.maxHistory {
		history = history[:r.maxHistory]
	}

	if err := r.saveHistoryList(history); err != nil {
		return fmt.Errorf("save history: %w", err)
	}

	r.logger.Debug("saved history entry",
		slog.String("id", entry.ID),
		slog.String("target", entry.Target))

	return nil
}

// GetHistory returns history entries, newest first, limited by count when
// limit is positive.
func (r *JSONRepository) GetHistory(limit int) ([]domain.HistoryEntry, error) {
	history, err := r.loadHistoryList()
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	if limit > 0 && limit < len(history) {
		history = history[:limit]
	}
	return history, nil
}

// ClearHistory removes all history entries.
func (r *JSONRepository) ClearHistory() error {
	if err := os.Remove(r.historyPath()); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("delete history file: %w", err)
	}

	r.logger.Debug("cleared history")
	return nil
}

// atomicWriteFile writes data to a file atomically by writing to a temp file
// in the same directory, syncing, then renaming over the target path.
func atomicWriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	f, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := f.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}

	success = true
	return nil
}

// validateRequestName checks that a saved request name is safe for use as
// a filename.
func validateRequestName(name string) error {
	if name == "" {
		return fmt.Errorf("request name must not be empty")
	}
	if strings.Contains(name, "..") {
		return fmt.Errorf("request name must not contain %q", "..")
	}
	if strings.ContainsAny(name, "/\\") {
		return fmt.Errorf("request name must not contain path separators")
	}
	if strings.ContainsRune(name, 0) {
		return fmt.Errorf("request name must not contain null bytes")
	}
	return nil
}

func (r *JSONRepository) ensureBaseDir() error {
	if err := os.MkdirAll(r.basePath, dirPermission); err != nil {
		return fmt.Errorf("create base directory: %w", err)
	}
	return nil
}

func (r *JSONRepository) ensureRequestsDir() error {
	path := filepath.Join(r.basePath, requestsDir)
	if err := os.MkdirAll(path, dirPermission); err != nil {
		return fmt.Errorf("create requests directory: %w", err)
	}
	return nil
}

func (r *JSONRepository) requestPath(name string) string {
	return filepath.Join(r.basePath, requestsDir, name+".json")
}

// verifyPathInRequestsDir checks that the resolved path is within the
// requests directory, complementing validateRequestName.
func (r *JSONRepository) verifyPathInRequestsDir(path string) error {
	requestsBase := filepath.Join(r.basePath, requestsDir)
	rel, err := filepath.Rel(requestsBase, path)
	if err != nil {
		return fmt.Errorf("path outside requests directory: %w", err)
	}
	if strings.HasPrefix(rel, "..") {
		return fmt.Errorf("path %q escapes requests directory", path)
	}
	return nil
}

func (r *JSONRepository) recentPath() string {
	return filepath.Join(r.basePath, recentFile)
}

func (r *JSONRepository) loadRecentList() ([]domain.Target, error) {
	data, err := os.ReadFile(r.recentPath())
	if err != nil {
		if os.IsNotExist(err) {
			return []domain.Target{}, nil
		}
		return nil, fmt.Errorf("read recent file: %w", err)
	}

	var recent []domain.Target
	if err := json.Unmarshal(data, &recent); err != nil {
		return nil, fmt.Errorf("unmarshal recent targets: %w", err)
	}
	return recent, nil
}

func (r *JSONRepository) saveRecentList(recent []domain.Target) error {
	data, err := json.MarshalIndent(recent, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal recent targets: %w", err)
	}
	if err := atomicWriteFile(r.recentPath(), data, filePermission); err != nil {
		return fmt.Errorf("write recent file: %w", err)
	}
	return nil
}

func removeDuplicateTarget(recent []domain.Target, target domain.Target) []domain.Target {
	var filtered []domain.Target
	for _, t := range recent {
		if t.URL != target.URL || t.Protocol != target.Protocol {
			filtered = append(filtered, t)
		}
	}
	return filtered
}

func (r *JSONRepository) historyPath() string {
	return filepath.Join(r.basePath, historyFile)
}

func (r *JSONRepository) loadHistoryList() ([]domain.HistoryEntry, error) {
	data, err := os.ReadFile(r.historyPath())
	if err != nil {
		if os.IsNotExist(err) {
			return []domain.HistoryEntry{}, nil
		}
		return nil, fmt.Errorf("read history file: %w", err)
	}

	var history []domain.HistoryEntry
	if err := json.Unmarshal(data, &history); err != nil {
		return nil, fmt.Errorf("unmarshal history: %w", err)
	}
	return history, nil
}

func (r *JSONRepository) saveHistoryList(history []domain.HistoryEntry) error {
	data, err := json.MarshalIndent(history, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal history: %w", err)
	}
	if err := atomicWriteFile(r.historyPath(), data, filePermission); err != nil {
		return fmt.Errorf("write history file: %w", err)
	}
	return nil
}
