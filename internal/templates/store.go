// Package templates implements the file-backed template store. Template
// documents live as .yaml, .yml or .json files in a directory; the store
// loads them into the registry and can keep them in sync with the directory
// through filesystem notifications.
package templates

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/casefolio/casefolio/internal/document"
	"github.com/casefolio/casefolio/internal/errs"
	"github.com/casefolio/casefolio/internal/logging"
	"github.com/casefolio/casefolio/internal/registry"
)

// Store loads template documents from a directory into a registry.
type Store struct {
	dir      string
	registry *registry.TemplateRegistry
	logger   logging.Logger
}

// NewStore creates a template store over the given directory.
func NewStore(dir string, reg *registry.TemplateRegistry, logger logging.Logger) *Store {
	return &Store{
		dir:      dir,
		registry: reg,
		logger:   logger.WithComponent("templates"),
	}
}

// Load reads every template file in the directory into the registry.
// Files that fail to parse are skipped with a warning; one bad template
// must not take down the whole store.
func (s *Store) Load(ctx context.Context) error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return errs.NewStorageError("template_dir_unreadable",
			fmt.Sprintf("reading template directory %q", s.dir), err)
	}

	loaded := 0
	for _, entry := range entries {
		if entry.IsDir() || !isTemplateFile(entry.Name()) {
			continue
		}
		if err := s.loadFile(ctx, filepath.Join(s.dir, entry.Name())); err != nil {
			s.logger.Warn(ctx, err, "skipping template file", "file", entry.Name())
			continue
		}
		loaded++
	}

	s.logger.Info(ctx, "templates loaded", "dir", s.dir, "count", loaded)
	return nil
}

// Watch follows directory changes until ctx is cancelled, reloading changed
// templates and removing deleted ones from the registry.
func (s *Store) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errs.NewInternalError("watcher_failed", "creating filesystem watcher", err)
	}
	if err := watcher.Add(s.dir); err != nil {
		watcher.Close()
		return errs.NewStorageError("watch_failed",
			fmt.Sprintf("watching template directory %q", s.dir), err)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				s.handleEvent(ctx, event)

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.logger.Warn(ctx, err, "template watcher error")
			}
		}
	}()

	s.logger.Info(ctx, "watching template directory", "dir", s.dir)
	return nil
}

func (s *Store) handleEvent(ctx context.Context, event fsnotify.Event) {
	if !isTemplateFile(event.Name) {
		return
	}

	switch {
	case event.Op.Has(fsnotify.Create) || event.Op.Has(fsnotify.Write):
		if err := s.loadFile(ctx, event.Name); err != nil {
			s.logger.Warn(ctx, err, "reloading changed template", "file", event.Name)
		}
	case event.Op.Has(fsnotify.Remove) || event.Op.Has(fsnotify.Rename):
		name := templateName(event.Name)
		s.registry.Remove(name)
		s.logger.Info(ctx, "template removed", "name", name)
	}
}

func (s *Store) loadFile(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errs.NewStorageError("template_unreadable",
			fmt.Sprintf("reading template %q", path), err)
	}

	content, err := parseTemplate(path, data)
	if err != nil {
		return err
	}

	info, err := os.Stat(path)
	if err != nil {
		return errs.NewStorageError("template_unreadable",
			fmt.Sprintf("stating template %q", path), err)
	}

	name := templateName(path)
	s.registry.Register(&registry.TemplateInfo{
		Name:     name,
		FilePath: path,
		Content:  content,
		LastMod:  info.ModTime(),
	})
	s.logger.Debug(ctx, "template loaded", "name", name)

	return nil
}

// ParseFile reads and parses a single template file without a store. Used by
// the CLI commands that work on one template at a time.
func ParseFile(path string) (document.Map, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.NewStorageError("template_unreadable",
			fmt.Sprintf("reading template %q", path), err)
	}
	return parseTemplate(path, data)
}

func parseTemplate(path string, data []byte) (document.Map, error) {
	var content document.Map

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if err := json.Unmarshal(data, &content); err != nil {
			return nil, errs.NewTemplateError("template_parse_failed",
				fmt.Sprintf("parsing JSON template %q", path), err)
		}
	default:
		if err := yaml.Unmarshal(data, &content); err != nil {
			return nil, errs.NewTemplateError("template_parse_failed",
				fmt.Sprintf("parsing YAML template %q", path), err)
		}
	}

	if err := document.Validate(content); err != nil {
		return nil, err
	}

	return content, nil
}

func isTemplateFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".json":
		return true
	default:
		return false
	}
}

func templateName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Get retrieves a loaded template by name.
func (s *Store) Get(name string) (*registry.TemplateInfo, bool) {
	return s.registry.Get(name)
}

// List returns all loaded templates sorted by name.
func (s *Store) List() []*registry.TemplateInfo {
	return s.registry.List()
}
