package presets

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

// FileStore keeps presets in a single YAML file:
//
//	presets:
//	  default:
//	    ai: {base_url: ..., model: ...}
//	    naming: {template: "{title}_{seq}_{intent}"}
//	    runtime: {backup: true}
type FileStore struct {
	mu   sync.Mutex
	path string
}

type presetFile struct {
	Presets map[string]Preset `yaml:"presets"`
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Get(_ context.Context, name string) (*Preset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := s.read()
	if err != nil {
		return nil, err
	}
	p, ok := f.Presets[name]
	if !ok {
		return nil, ErrNotFound
	}
	p.Name = name
	return &p, nil
}

func (s *FileStore) Put(_ context.Context, p Preset) error {
	if err := ValidateName(p.Name); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := s.read()
	if err != nil {
		return err
	}
	f.Presets[p.Name] = p
	return s.write(f)
}

func (s *FileStore) Delete(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := s.read()
	if err != nil {
		return err
	}
	if _, ok := f.Presets[name]; !ok {
		return ErrNotFound
	}
	delete(f.Presets, name)
	return s.write(f)
}

func (s *FileStore) List(_ context.Context) ([]Preset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := s.read()
	if err != nil {
		return nil, err
	}
	out := make([]Preset, 0, len(f.Presets))
	for name, p := range f.Presets {
		p.Name = name
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *FileStore) read() (*presetFile, error) {
	f := &presetFile{}
	data, err := os.ReadFile(s.path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("read presets: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, f); err != nil {
			return nil, fmt.Errorf("parse %s: %w", filepath.Base(s.path), err)
		}
	}
	if f.Presets == nil {
		f.Presets = make(map[string]Preset)
	}
	return f, nil
}

func (s *FileStore) write(f *presetFile) error {
	data, err := yaml.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshal presets: %w", err)
	}
	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write presets: %w", err)
	}
	return os.Rename(tmp, s.path)
}
