// Package storage persists sections on the file system. Every section is
// a directory holding the flow graph, the session info and one bundle
// directory per screen, nested like the screens in the flow graph.
package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

const (
	sessionFilename = "session.json"
	graphFilename   = "flow.json"
	screensDirname  = "screens"
)

// Store is the root directory all sections live in.
type Store struct {
	Root string
}

func New(root string) *Store {
	return &Store{Root: root}
}

// WriteJSON writes v indented to path. The file is replaced atomically,
// readers never see a partial file.
func WriteJSON(path string, v any) error {
	// json.MarshalIndent would escape html characters in bodies and dom
	// text, the encoder can be told not to
	buffer := &bytes.Buffer{}
	encoder := json.NewEncoder(buffer)
	encoder.SetEscapeHTML(false)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	if err := EnsureDir(filepath.Dir(path)); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(buffer.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func ReadJSON(path string, v any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return nil
}

func EnsureDir(path string) error {
	if err := os.MkdirAll(path, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", path, err)
	}
	return nil
}

func PathExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// Sections returns the names of all sections with a flow graph, sorted.
func (s *Store) Sections() ([]string, error) {
	entries, err := os.ReadDir(s.Root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []string{}, nil
		}
		return nil, err
	}
	names := []string{}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if ok, _ := PathExists(filepath.Join(s.Root, e.Name(), graphFilename)); ok {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Section returns the handle of the section called name. The directory is
// not created until something is written.
func (s *Store) Section(name string) *Section {
	return &Section{Name: name, Dir: filepath.Join(s.Root, name)}
}

// RemoveSection deletes a section and all its screens.
func (s *Store) RemoveSection(name string) error {
	return os.RemoveAll(filepath.Join(s.Root, name))
}
