package filestore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/MarkoPoloResearchLab/whitelist/pkg/whitelist"
	"github.com/google/renameio/v2"
)

const (
	fileExtension       = ".json"
	fileMode            = 0o644
	directoryMode       = 0o755
	errorOperationStore = "store"
	errorCodeRead       = "read"
	errorCodeParse      = "parse"
	errorCodeMarshal    = "marshal"
	errorCodeMkdir      = "mkdir"
	errorCodeWrite      = "write"
)

var errInvalidCollection = errors.New("invalid collection name")

// Provider stores each collection as one JSON document under a root directory.
type Provider struct {
	root        string
	mutex       sync.Mutex
	collections map[string]*Collection
}

// New returns a Provider rooted at dir.
func New(dir string) (*Provider, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("filestore: data directory is required")
	}
	return &Provider{root: dir, collections: make(map[string]*Collection)}, nil
}

// Collection returns the document store for name, e.g. "whitelists/whitelist_ind".
func (provider *Provider) Collection(name string) (whitelist.RecordStore, error) {
	cleaned := strings.Trim(name, "/")
	if cleaned == "" || strings.Contains(cleaned, "..") {
		return nil, fmt.Errorf("%w: %q", errInvalidCollection, name)
	}
	provider.mutex.Lock()
	defer provider.mutex.Unlock()
	if existing, ok := provider.collections[cleaned]; ok {
		return existing, nil
	}
	collection := &Collection{
		name: cleaned,
		path: filepath.Join(provider.root, filepath.FromSlash(cleaned)+fileExtension),
	}
	provider.collections[cleaned] = collection
	return collection, nil
}

// Collection is a single JSON document replaced atomically on every save.
type Collection struct {
	name string
	path string
}

// Path reports where the document lives on disk.
func (collection *Collection) Path() string {
	return collection.path
}

// Load reads the document. A missing or empty file is an empty collection.
func (collection *Collection) Load(_ context.Context) (map[string]json.RawMessage, error) {
	contents, err := os.ReadFile(collection.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]json.RawMessage{}, nil
	}
	if err != nil {
		return nil, wrapStoreError(collection.name, errorCodeRead, err)
	}
	if len(bytes.TrimSpace(contents)) == 0 {
		return map[string]json.RawMessage{}, nil
	}
	records := make(map[string]json.RawMessage)
	if err := json.Unmarshal(contents, &records); err != nil {
		return nil, wrapStoreError(collection.name, errorCodeParse, err)
	}
	if records == nil {
		records = map[string]json.RawMessage{}
	}
	return records, nil
}

// Save writes records to a temporary file and renames it over the document.
func (collection *Collection) Save(_ context.Context, records map[string]json.RawMessage) error {
	if records == nil {
		records = map[string]json.RawMessage{}
	}
	contents, err := json.Marshal(records)
	if err != nil {
		return wrapStoreError(collection.name, errorCodeMarshal, err)
	}
	if err := os.MkdirAll(filepath.Dir(collection.path), directoryMode); err != nil {
		return wrapStoreError(collection.name, errorCodeMkdir, err)
	}
	if err := renameio.WriteFile(collection.path, append(contents, '\n'), fileMode); err != nil {
		return wrapStoreError(collection.name, errorCodeWrite, err)
	}
	return nil
}

func wrapStoreError(subject string, code string, err error) error {
	return whitelist.WrapError(errorOperationStore, subject, code, err)
}
