package snapshot

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"seedcontest/internal/model"
	"seedcontest/internal/storage"
)

const DefaultExt = "json"

// Decode reads a population in the format implied by ext. Snapshots written
// without version fields are taken as current.
func Decode(ext string, data []byte) (model.Population, error) {
	var population model.Population
	switch strings.ToLower(normalizeExt(ext)) {
	case "json":
		if err := json.Unmarshal(data, &population); err != nil {
			return model.Population{}, err
		}
	case "yaml", "yml":
		if err := yaml.Unmarshal(data, &population); err != nil {
			return model.Population{}, err
		}
	default:
		return model.Population{}, fmt.Errorf("unsupported snapshot format: %s", ext)
	}

	if population.VersionedRecord == (model.VersionedRecord{}) {
		population.VersionedRecord = storage.Versioned()
	}
	if population.VersionedRecord != storage.Versioned() {
		return model.Population{}, storage.ErrVersionMismatch
	}
	return population, nil
}

func Encode(ext string, population model.Population) ([]byte, error) {
	switch strings.ToLower(normalizeExt(ext)) {
	case "json":
		data, err := json.MarshalIndent(population, "", "  ")
		if err != nil {
			return nil, err
		}
		return append(data, '\n'), nil
	case "yaml", "yml":
		return yaml.Marshal(population)
	default:
		return nil, fmt.Errorf("unsupported snapshot format: %s", ext)
	}
}

// ReadFile loads one snapshot. The file is read whole and closed before
// decoding.
func ReadFile(path string) (model.Population, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.Population{}, err
	}
	population, err := Decode(filepath.Ext(path), data)
	if err != nil {
		return model.Population{}, fmt.Errorf("decode snapshot %s: %w", path, err)
	}
	return population, nil
}

// WriteFile stores one snapshot in the format implied by the path extension.
func WriteFile(path string, population model.Population) error {
	data, err := Encode(filepath.Ext(path), population)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
