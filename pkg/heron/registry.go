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

// Package heron wires the captioning pipeline together: decoder variant
// registry and concurrent caption evaluation over a feature store.
package heron

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/gomlx/gomlx/backends"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"go.uber.org/zap"

	"github.com/heronml/heron/pkg/heron/lib/models"
)

// ModelBuilder constructs one decoder variant against an engine. Weights
// live in ctx so checkpoints can restore them.
type ModelBuilder func(engine backends.Backend, ctx *context.Context, cfg models.Config) (models.CaptionModel, error)

// Registry resolves decoder variant names to constructors.
type Registry struct {
	mu       sync.RWMutex
	builders map[string]ModelBuilder
	logger   *zap.Logger
}

// NewRegistry creates a registry with the built-in decoder variants
// registered.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Registry{
		builders: make(map[string]ModelBuilder),
		logger:   logger,
	}
	r.builders["topdown"] = func(engine backends.Backend, ctx *context.Context, cfg models.Config) (models.CaptionModel, error) {
		return models.NewTopDown(engine, ctx, cfg)
	}
	r.builders["showattendtell"] = func(engine backends.Backend, ctx *context.Context, cfg models.Config) (models.CaptionModel, error) {
		return models.NewShowAttendTell(engine, ctx, cfg)
	}
	return r
}

// Register adds a variant. Registering an existing name is an error.
func (r *Registry) Register(name string, builder ModelBuilder) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.builders[name]; exists {
		return fmt.Errorf("decoder variant already registered: %s", name)
	}
	r.builders[name] = builder
	return nil
}

// Build constructs the named decoder variant. Unknown names report the
// available variants.
func (r *Registry) Build(name string, engine backends.Backend, ctx *context.Context, cfg models.Config) (models.CaptionModel, error) {
	r.mu.RLock()
	builder, ok := r.builders[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown decoder variant %q, available: %s", name, strings.Join(r.List(), ", "))
	}

	model, err := builder(engine, ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("building decoder variant %s: %w", name, err)
	}
	r.logger.Info("Built decoder variant",
		zap.String("name", name),
		zap.Int("vocab_size", cfg.VocabSize))
	return model, nil
}

// List returns all registered variant names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.builders))
	for name := range r.builders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
