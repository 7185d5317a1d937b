package confidence

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/eshaffer321/receipt-reconciler/internal/domain/model"
	"gopkg.in/yaml.v3"
)

// FileWeightStore keeps weights in a YAML file. Writes go to a temp file in
// the same directory and are renamed into place.
type FileWeightStore struct {
	path string
}

// NewFileWeightStore creates a store backed by path.
func NewFileWeightStore(path string) *FileWeightStore {
	return &FileWeightStore{path: path}
}

// LoadWeights implements WeightStore.
func (s *FileWeightStore) LoadWeights(ctx context.Context) (*model.Weights, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var w model.Weights
	if err := yaml.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("failed to parse weights file %s: %w", s.path, err)
	}
	return &w, nil
}

// SaveWeights implements WeightStore.
func (s *FileWeightStore) SaveWeights(ctx context.Context, w model.Weights) error {
	data, err := yaml.Marshal(w)
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create weights directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".weights-*.yaml")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmp.Name(), s.path)
}
