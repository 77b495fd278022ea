package dnssd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/renameio/v2/maybe"
)

// StateFile publishes the resolved advertisements so the services behind
// auto-assigned ports can discover which port they were given. Every write
// replaces the file atomically.
type StateFile struct {
	// Path is the file location
	Path string

	mu sync.Mutex
}

// StateRecord is one service entry in the state file
type StateRecord struct {
	Key   string `json:"key"`
	Type  string `json:"type"`
	Name  string `json:"name"`
	Port  uint16 `json:"port,omitempty"`
	State string `json:"state"`
	Error string `json:"error,omitempty"`
}

// stateDocument is the state file layout
type stateDocument struct {
	Service   string        `json:"service"`
	PID       int           `json:"pid"`
	UpdatedAt time.Time     `json:"updated_at"`
	Services  []StateRecord `json:"services"`
}

// Write replaces the state file with the given snapshot
func (f *StateFile) Write(service string, snapshot []WorkerStatus) error {
	records := make([]StateRecord, 0, len(snapshot))
	for _, ws := range snapshot {
		rec := StateRecord{
			Key:   ws.Key,
			Type:  ws.Type,
			Name:  ws.Name,
			Port:  ws.Port,
			State: ws.State.String(),
		}
		if ws.Err != nil {
			rec.Error = ws.Err.Error()
		}
		records = append(records, rec)
	}

	data, err := json.MarshalIndent(stateDocument{
		Service:   service,
		PID:       os.Getpid(),
		UpdatedAt: time.Now().UTC(),
		Services:  records,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding state: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(f.Path), DirMode); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}
	if err := maybe.WriteFile(f.Path, append(data, '\n'), FileMode); err != nil {
		return fmt.Errorf("writing state file %s: %w", f.Path, err)
	}
	return nil
}

// Remove deletes the state file; a missing file is not an error
func (f *StateFile) Remove() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.Remove(f.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing state file: %w", err)
	}
	return nil
}

// ReadStateFile decodes the records of a state file
func ReadStateFile(path string) ([]StateRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc stateDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decoding state file %s: %w", path, err)
	}
	return doc.Services, nil
}
