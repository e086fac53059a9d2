package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// File is a KV kept in a single JSON document. Every operation reads the
// whole document, modifies it and writes it back.
type File struct {
	mu   sync.Mutex
	path string
}

// NewFile returns a File KV at path; the file is created on first write.
func NewFile(path string) *File {
	return &File{path: path}
}

func (f *File) load() (map[string]json.RawMessage, error) {
	data := make(map[string]json.RawMessage)
	raw, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return data, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "read store")
	}
	if len(raw) == 0 {
		return data, nil
	}
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, errors.Wrapf(err, "decode store %s", f.path)
	}
	return data, nil
}

func (f *File) save(data map[string]json.RawMessage) error {
	raw, err := json.MarshalIndent(data, "", "\t")
	if err != nil {
		return errors.Wrap(err, "encode store")
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return errors.Wrap(err, "create store dir")
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return errors.Wrap(err, "write store")
	}
	if err := os.Rename(tmp, f.path); err != nil {
		os.Remove(tmp)
		return errors.Wrap(err, "write store")
	}
	return nil
}

// Get implements KV.
func (f *File) Get(key string, v interface{}) (bool, error) {
	f.mu.Lock()
	data, err := f.load()
	f.mu.Unlock()
	if err != nil {
		return false, err
	}
	raw, ok := data[key]
	if !ok {
		return false, nil
	}
	return true, errors.Wrapf(json.Unmarshal(raw, v), "decode %s", key)
}

// Set implements KV.
func (f *File) Set(key string, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "encode %s", key)
	}
	return f.update(func(data map[string]json.RawMessage) {
		data[key] = raw
	})
}

// Delete implements KV.
func (f *File) Delete(key string) error {
	return f.update(func(data map[string]json.RawMessage) {
		delete(data, key)
	})
}

// DeletePrefix implements KV.
func (f *File) DeletePrefix(prefix string) error {
	return f.update(func(data map[string]json.RawMessage) {
		for k := range data {
			if strings.HasPrefix(k, prefix) {
				delete(data, k)
			}
		}
	})
}

func (f *File) update(fn func(map[string]json.RawMessage)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, err := f.load()
	if err != nil {
		return err
	}
	fn(data)
	return f.save(data)
}
