// Copyright 2025 Heron ML, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package cmd

import (
	"fmt"

	"github.com/gomlx/gomlx/backends"
	mlcontext "github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/context/checkpoints"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/heronml/heron/pkg/heron"
	"github.com/heronml/heron/pkg/heron/lib/models"
	"github.com/heronml/heron/pkg/heron/lib/vocab"
)

// decoderEnv bundles everything a decoder-facing subcommand needs: the word
// map, the compute engine, the weight context and the built model.
type decoderEnv struct {
	vocabulary *vocab.Vocabulary
	engine     backends.Backend
	ctx        *mlcontext.Context
	model      models.CaptionModel
}

// newDecoderEnv loads the word map, selects the compute engine and builds
// the requested decoder variant. When restoreDir is non-empty, previously
// saved weights are loaded into the context before the model compiles.
func newDecoderEnv(variant, wordMapPath, restoreDir string, logger *zap.Logger) (*decoderEnv, error) {
	vocabulary, err := vocab.Load(wordMapPath)
	if err != nil {
		return nil, err
	}

	engine, err := models.NewEngine(viper.GetString("engine"))
	if err != nil {
		return nil, err
	}

	ctx := mlcontext.New()
	if restoreDir != "" {
		if _, err := checkpoints.Build(ctx).Dir(restoreDir).Done(); err != nil {
			return nil, fmt.Errorf("loading checkpoint from %s: %w", restoreDir, err)
		}
		logger.Info("Restored weights", zap.String("dir", restoreDir))
	}

	model, err := heron.NewRegistry(logger).Build(variant, engine, ctx, models.DefaultConfig(vocabulary.Size()))
	if err != nil {
		return nil, err
	}
	return &decoderEnv{
		vocabulary: vocabulary,
		engine:     engine,
		ctx:        ctx,
		model:      model,
	}, nil
}
