package dnssd

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// ServiceSpec is one configured advertisement. It is never modified after load.
type ServiceSpec struct {
	// Key is the service table key
	Key string
	// Type is the DNS-SD service type, e.g. "_http._tcp"
	Type string
	// Name is the advertised instance name
	Name string
	// Port is the configured port; 0 asks for an OS-assigned port
	Port uint16
	// Text holds the TXT record attributes
	Text map[string]string
}

// AutoPort reports whether the port is assigned at startup
func (s ServiceSpec) AutoPort() bool {
	return s.Port == 0
}

// ServiceTable maps service keys to their specs
type ServiceTable map[string]ServiceSpec

// Keys returns the service keys in sorted order
func (t ServiceTable) Keys() []string {
	return slices.Sorted(maps.Keys(t))
}

// fileSchema is the on-disk shape of the service table
type fileSchema struct {
	Services map[string]serviceSchema `toml:"services"`
}

type serviceSchema struct {
	Name *string           `toml:"name"`
	Type *string           `toml:"type"`
	Port *int64            `toml:"port"`
	Text map[string]string `toml:"text"`
}

// LoadServiceTable reads and validates the service table at path.
// Every failure is a *ConfigError.
func LoadServiceTable(path string) (ServiceTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &ConfigError{Path: path, Err: err}
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, &ConfigError{Path: path, Err: err}
	}

	var doc fileSchema
	dec := toml.NewDecoder(bytes.NewReader(data)).DisallowUnknownFields()
	if err := dec.Decode(&doc); err != nil {
		return nil, decodeError(path, err)
	}
	if len(doc.Services) == 0 && !hasServicesTable(data) {
		return nil, &ConfigError{Path: path, Field: "services", Err: ErrMissingField}
	}

	table := make(ServiceTable, len(doc.Services))
	for key, raw := range doc.Services {
		spec, err := raw.validate(path, key)
		if err != nil {
			return nil, err
		}
		table[key] = spec
	}

	return table, nil
}

func (s serviceSchema) validate(path, key string) (ServiceSpec, error) {
	field := func(name string) string {
		return "services." + key + "." + name
	}

	if s.Name == nil || *s.Name == "" {
		return ServiceSpec{}, &ConfigError{Path: path, Field: field("name"), Err: ErrMissingField}
	}
	if s.Type == nil || *s.Type == "" {
		return ServiceSpec{}, &ConfigError{Path: path, Field: field("type"), Err: ErrMissingField}
	}
	if s.Port == nil {
		return ServiceSpec{}, &ConfigError{Path: path, Field: field("port"), Err: ErrMissingField}
	}
	if *s.Port < 0 || *s.Port > 65535 {
		return ServiceSpec{}, &ConfigError{
			Path:  path,
			Field: field("port"),
			Err:   fmt.Errorf("%w: %d", ErrPortRange, *s.Port),
		}
	}

	text := make(map[string]string, len(s.Text))
	maps.Copy(text, s.Text)

	return ServiceSpec{
		Key:  key,
		Type: *s.Type,
		Name: *s.Name,
		Port: uint16(*s.Port),
		Text: text,
	}, nil
}

// hasServicesTable reports whether the document declares a services table,
// even an empty one
func hasServicesTable(data []byte) bool {
	var raw map[string]any
	if err := toml.Unmarshal(data, &raw); err != nil {
		return false
	}
	_, ok := raw["services"]
	return ok
}

// decodeError converts go-toml errors into a ConfigError naming the field at fault
func decodeError(path string, err error) error {
	var strict *toml.StrictMissingError
	if errors.As(err, &strict) && len(strict.Errors) > 0 {
		first := strict.Errors[0]
		return &ConfigError{
			Path:  path,
			Field: strings.Join(first.Key(), "."),
			Err:   errors.New("unknown field"),
		}
	}

	var de *toml.DecodeError
	if errors.As(err, &de) {
		row, col := de.Position()
		return &ConfigError{
			Path:  path,
			Field: strings.Join(de.Key(), "."),
			Err:   fmt.Errorf("line %d column %d: %w", row, col, err),
		}
	}

	return &ConfigError{Path: path, Err: err}
}

// ConfigPath derives the config file location from an environment-provided
// base directory: <$envVar>/<dirName>/<fileName>.
func ConfigPath(lookupEnv func(string) (string, bool), envVar, dirName, fileName string) (string, error) {
	base, ok := lookupEnv(envVar)
	if !ok || base == "" {
		return "", fmt.Errorf("%w: $%s", ErrBaseDirUnset, envVar)
	}
	return filepath.Join(base, dirName, fileName), nil
}
