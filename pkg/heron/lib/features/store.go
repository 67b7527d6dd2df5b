// Copyright 2025 Heron ML, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package features

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/gomlx/gomlx/pkg/core/tensors"

	"github.com/heronml/heron/pkg/heron/lib/decoding"
)

const indexFilename = "index.json"

// Store is an on-disk collection of per-image region feature tensors with
// random access by image ID. Each image's regions are one serialized tensor
// file; index.json maps image IDs to file names.
type Store struct {
	dir   string
	index map[string]string
}

// CreateStore initializes an empty store directory.
func CreateStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating feature store directory: %w", err)
	}
	return &Store{dir: dir, index: make(map[string]string)}, nil
}

// OpenStore opens an existing store directory.
func OpenStore(dir string) (*Store, error) {
	data, err := os.ReadFile(filepath.Join(dir, indexFilename))
	if err != nil {
		return nil, fmt.Errorf("reading feature store index: %w", err)
	}
	index := make(map[string]string)
	if err := json.Unmarshal(data, &index); err != nil {
		return nil, fmt.Errorf("parsing feature store index: %w", err)
	}
	return &Store{dir: dir, index: index}, nil
}

// Put serializes one image's region features. Call Flush to persist the
// index afterwards.
func (s *Store) Put(imageID string, regions [][]float32) error {
	tensor := tensors.FromValue(regions)
	filename := imageID + ".tensor"
	if err := tensor.Save(filepath.Join(s.dir, filename)); err != nil {
		return fmt.Errorf("saving features for image %s: %w", imageID, err)
	}
	s.index[imageID] = filename
	return nil
}

// Flush writes the index file.
func (s *Store) Flush() error {
	data, err := json.MarshalIndent(s.index, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding feature store index: %w", err)
	}
	if err := os.WriteFile(filepath.Join(s.dir, indexFilename), data, 0o644); err != nil {
		return fmt.Errorf("writing feature store index: %w", err)
	}
	return nil
}

// Load reads one image's region features and mean-pools them into the view
// consumed by the decoding step primitives.
func (s *Store) Load(imageID string) (*decoding.Features, error) {
	filename, ok := s.index[imageID]
	if !ok {
		return nil, fmt.Errorf("image %s not in feature store", imageID)
	}
	tensor, err := tensors.Load(filepath.Join(s.dir, filename))
	if err != nil {
		return nil, fmt.Errorf("loading features for image %s: %w", imageID, err)
	}
	regions, ok := tensor.Value().([][]float32)
	if !ok {
		return nil, fmt.Errorf("features for image %s: tensor shape %s is not a float32 matrix", imageID, tensor.Shape())
	}
	return decoding.NewFeatures(regions), nil
}

// Has reports whether the store contains features for the image.
func (s *Store) Has(imageID string) bool {
	_, ok := s.index[imageID]
	return ok
}

// IDs returns all stored image IDs in sorted order.
func (s *Store) IDs() []string {
	ids := make([]string, 0, len(s.index))
	for id := range s.index {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of stored images.
func (s *Store) Len() int { return len(s.index) }
