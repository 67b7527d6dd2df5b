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

package heron

import (
	"testing"

	"github.com/gomlx/gomlx/backends"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heronml/heron/pkg/heron/lib/models"
)

func testModelConfig() models.Config {
	return models.Config{
		VocabSize:    6,
		EmbedDim:     4,
		AttentionDim: 3,
		DecoderDim:   5,
		FeatureDim:   2,
		NumRegions:   3,
	}
}

func TestRegistryBuildsBuiltinVariants(t *testing.T) {
	engine, err := models.NewEngine("go")
	require.NoError(t, err)
	registry := NewRegistry(nil)

	assert.Equal(t, []string{"showattendtell", "topdown"}, registry.List())

	for _, name := range registry.List() {
		model, err := registry.Build(name, engine, context.New(), testModelConfig())
		require.NoError(t, err, name)
		assert.Equal(t, 6, model.VocabSize(), name)
	}
}

func TestRegistryUnknownVariant(t *testing.T) {
	engine, err := models.NewEngine("go")
	require.NoError(t, err)
	registry := NewRegistry(nil)

	_, err = registry.Build("lstm", engine, context.New(), testModelConfig())
	require.Error(t, err)
	// The error names the available variants.
	assert.Contains(t, err.Error(), "topdown")
	assert.Contains(t, err.Error(), "showattendtell")
}

func TestRegistryRegisterDuplicate(t *testing.T) {
	registry := NewRegistry(nil)

	builder := func(engine backends.Backend, ctx *context.Context, cfg models.Config) (models.CaptionModel, error) {
		return models.NewTopDown(engine, ctx, cfg)
	}
	require.NoError(t, registry.Register("custom", builder))
	assert.Error(t, registry.Register("custom", builder))
	assert.Error(t, registry.Register("topdown", builder))
}
