// Package state provides the persistent, namespaced key/value store.
package state

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/rs/zerolog"
)

// CorruptedSuffix is appended to a state file that could not be decoded.
const CorruptedSuffix = ".corrupted"

// OpKind is the kind of a single state mutation.
type OpKind int

const (
	OpSet OpKind = iota
	OpUnset
	OpClear // removes every key of the section
)

// Op is one mutation inside a batch.
type Op struct {
	Kind  OpKind
	Key   string
	Value string
}

// Store is a file-backed section/key/value store.
// The in-memory document is never mutated in place: Apply builds a new
// document, writes it and only then swaps it in.
type Store struct {
	path  string
	codec Codec
	log   zerolog.Logger

	mu   sync.RWMutex
	data Sections
}

// Open loads the store at path. A missing file yields an empty store; a file
// that cannot be decoded is moved aside to path+".corrupted" and the store
// starts empty.
func Open(path string, codec Codec, log zerolog.Logger) (*Store, error) {
	s := &Store{
		path:  path,
		codec: codec,
		log:   log.With().Str("component", "state_store").Str("codec", codec.Name()).Logger(),
		data:  Sections{},
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	content, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		s.log.Debug().Str("path", path).Msg("No state file, starting empty")
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}
	if len(content) == 0 {
		return s, nil
	}

	decoded, err := codec.Unmarshal(content)
	if err != nil {
		archived := path + CorruptedSuffix
		if renameErr := os.Rename(path, archived); renameErr != nil {
			return nil, fmt.Errorf("state file is corrupted and could not be archived: %w", renameErr)
		}
		s.log.Error().Err(err).Str("archived", archived).Msg("State file corrupted, starting empty")
		return s, nil
	}

	for section, values := range decoded {
		if values == nil {
			values = map[string]string{}
		}
		s.data[section] = values
	}
	return s, nil
}

// Path returns the backing file.
func (s *Store) Path() string {
	return s.path
}

// Get returns a single value.
func (s *Store) Get(section, key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[section][key]
	return v, ok
}

// Keys returns the sorted keys of a section.
func (s *Store) Keys(section string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.data[section]))
	for k := range s.data[section] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Sections returns the sorted section names.
func (s *Store) Sections() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.data))
	for name := range s.data {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Apply runs every op against section and persists the result.
// Either all ops are applied and written, or nothing changes.
func (s *Store) Apply(section string, ops []Op) error {
	if len(ops) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := make(Sections, len(s.data)+1)
	for name, values := range s.data {
		next[name] = values
	}

	values := make(map[string]string, len(s.data[section])+len(ops))
	for k, v := range s.data[section] {
		values[k] = v
	}
	for _, op := range ops {
		switch op.Kind {
		case OpSet:
			values[op.Key] = op.Value
		case OpUnset:
			delete(values, op.Key)
		case OpClear:
			values = make(map[string]string)
		default:
			return fmt.Errorf("unknown state op %d", op.Kind)
		}
	}
	if len(values) == 0 {
		delete(next, section)
	} else {
		next[section] = values
	}

	if err := s.write(next); err != nil {
		return err
	}
	s.data = next
	return nil
}

// write persists doc atomically through a temporary file and rename.
func (s *Store) write(doc Sections) error {
	content, err := s.codec.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary state file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write state: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to sync state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close state: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace state file: %w", err)
	}
	return nil
}
