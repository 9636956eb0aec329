package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/samvad-hq/channel-relay/internal/domain"
	"github.com/samvad-hq/channel-relay/internal/logger"
	"gopkg.in/yaml.v3"
)

// configFile is the on-disk shape of the channels file.
type configFile struct {
	Channels []domain.ChannelConfig `json:"channels" yaml:"channels"`
}

// Registry resolves source channel ids to their monitoring configuration.
type Registry struct {
	path string
	log  logger.Logger

	mu  sync.RWMutex
	idx map[string]domain.ChannelConfig
}

// Load reads the channels file. A missing file yields an empty registry
// that Save will create.
func Load(path string, log logger.Logger) (*Registry, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("channels file path is empty")
	}
	r := &Registry{path: path, log: logger.Ensure(log), idx: map[string]domain.ChannelConfig{}}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload replaces the in-memory set with the file contents. On error the
// previous set is kept.
func (r *Registry) Reload() error {
	raw, err := os.ReadFile(r.path)
	if errors.Is(err, os.ErrNotExist) {
		r.log.WarnObj("channels file not found, starting empty", "registry", map[string]any{"path": r.path})
		r.swap(map[string]domain.ChannelConfig{})
		return nil
	}
	if err != nil {
		return fmt.Errorf("read channels file: %w", err)
	}

	file, err := parseChannels(raw, filepath.Ext(r.path))
	if err != nil {
		return err
	}

	idx := make(map[string]domain.ChannelConfig, len(file.Channels))
	for i, c := range file.Channels {
		c = sanitize(c)
		if c.ChannelID == "" {
			return fmt.Errorf("channels[%d]: channel_id is required", i)
		}
		if _, exists := idx[c.ChannelID]; exists {
			return fmt.Errorf("duplicate channel id %q", c.ChannelID)
		}
		idx[c.ChannelID] = c
	}
	r.swap(idx)
	r.log.InfoObj("channels loaded", "registry", map[string]any{"path": r.path, "count": len(idx)})
	return nil
}

func (r *Registry) swap(idx map[string]domain.ChannelConfig) {
	r.mu.Lock()
	r.idx = idx
	r.mu.Unlock()
}

func parseChannels(data []byte, ext string) (configFile, error) {
	ext = strings.ToLower(strings.TrimSpace(ext))
	decoders := []struct {
		name string
		ext  string
		fn   func([]byte, any) error
	}{
		{name: "yaml", ext: ".yaml", fn: yaml.Unmarshal},
		{name: "yaml", ext: ".yml", fn: yaml.Unmarshal},
		{name: "json", ext: ".json", fn: json.Unmarshal},
	}

	var lastErr error
	for _, d := range decoders {
		if ext != "" && ext != d.ext {
			continue
		}
		var f configFile
		if err := d.fn(data, &f); err != nil {
			lastErr = fmt.Errorf("decode %s channels: %w", d.name, err)
			continue
		}
		return f, nil
	}
	if lastErr != nil {
		return configFile{}, lastErr
	}
	return configFile{}, errors.New("channels file format not recognized (expected YAML or JSON)")
}

func sanitize(c domain.ChannelConfig) domain.ChannelConfig {
	c.ChannelID = strings.TrimSpace(c.ChannelID)
	c.ChannelName = strings.TrimSpace(c.ChannelName)
	c.PricePattern = strings.TrimSpace(c.PricePattern)
	if c.DestinationTopic < 0 {
		c.DestinationTopic = 0
	}
	return c
}

// Lookup returns the configuration of channelID, if monitored at all.
func (r *Registry) Lookup(channelID string) (domain.ChannelConfig, bool) {
	if r == nil {
		return domain.ChannelConfig{}, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.idx[strings.TrimSpace(channelID)]
	return c, ok
}

// Upsert adds or replaces a channel in memory. Unsaved changes are replaced
// by the next Reload, so callers persist with Save.
func (r *Registry) Upsert(c domain.ChannelConfig) error {
	c = sanitize(c)
	if c.ChannelID == "" {
		return errors.New("channel_id is required")
	}
	r.mu.Lock()
	r.idx[c.ChannelID] = c
	r.mu.Unlock()
	return nil
}

// Remove deletes a channel and reports whether it existed.
func (r *Registry) Remove(channelID string) bool {
	channelID = strings.TrimSpace(channelID)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.idx[channelID]; !ok {
		return false
	}
	delete(r.idx, channelID)
	return true
}

// All returns channels sorted by id, optionally only the active ones.
func (r *Registry) All(onlyActive bool) []domain.ChannelConfig {
	r.mu.RLock()
	out := make([]domain.ChannelConfig, 0, len(r.idx))
	for _, c := range r.idx {
		if onlyActive && !c.IsActive() {
			continue
		}
		out = append(out, c)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ChannelID < out[j].ChannelID })
	return out
}

// Save writes the current set back to the channels file via a temp file rename.
func (r *Registry) Save() error {
	file := configFile{Channels: r.All(false)}

	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(r.path)) {
	case ".json":
		data, err = json.MarshalIndent(file, "", "  ")
	default:
		data, err = yaml.Marshal(file)
	}
	if err != nil {
		return fmt.Errorf("encode channels: %w", err)
	}

	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create channels directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".channels-*")
	if err != nil {
		return fmt.Errorf("create temp channels file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write channels file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close channels file: %w", err)
	}
	if err := os.Rename(tmp.Name(), r.path); err != nil {
		return fmt.Errorf("replace channels file: %w", err)
	}
	return nil
}

// Watch reloads the registry whenever the channels file changes, until ctx
// is done. Reload errors are logged and the previous set stays in effect.
func (r *Registry) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()

	// Watch the directory so editor rename-and-replace saves are seen.
	if err := w.Add(filepath.Dir(r.path)); err != nil {
		return fmt.Errorf("watch channels directory: %w", err)
	}
	target := filepath.Clean(r.path)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			if err := r.Reload(); err != nil {
				r.log.ErrorObj("channels reload failed", "registry", map[string]any{
					"path":  r.path,
					"error": err.Error(),
				})
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			r.log.WarnObj("channels watcher error", "registry", map[string]any{"error": err.Error()})
		}
	}
}
