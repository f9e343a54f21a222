package toggles

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// LoadFile decodes a TOML toggle file on top of base. Keys missing from the
// file keep their base value.
func LoadFile(path string, base Values) (Values, error) {
	v := base
	if _, err := toml.DecodeFile(path, &v); err != nil {
		return base, fmt.Errorf("decode toggles %s: %w", path, err)
	}
	return v, nil
}

// Watch reloads s from path whenever the file changes, until ctx is done.
// The directory is watched so editors that replace the file are followed.
func Watch(ctx context.Context, path string, s *Set) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	reload := func() {
		v, err := LoadFile(abs, s.Load())
		if err != nil {
			log.Ctx(ctx).Warn().Err(err).Msg("toggle reload failed, keeping previous values")
			return
		}
		s.Store(v)
		log.Ctx(ctx).Info().
			Bool("indexing", v.Indexing).
			Bool("task_creation", v.TaskCreation).
			Bool("search", v.Search).
			Bool("process_immediately", v.ProcessImmediately).
			Msg("toggles reloaded")
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				reload()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Ctx(ctx).Warn().Err(err).Msg("toggle watcher error")
		}
	}
}
