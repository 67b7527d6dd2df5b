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
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/heronml/heron/pkg/heron/lib/decoding"
	"github.com/heronml/heron/pkg/heron/lib/models"
)

// ErrNoImages is returned when an evaluation run is given no image IDs.
var ErrNoImages = errors.New("no images to evaluate")

// FeatureSource provides region features by image ID. The feature store
// satisfies it.
type FeatureSource interface {
	Load(imageID string) (*decoding.Features, error)
}

// EvaluatorConfig holds configuration for concurrent caption evaluation.
type EvaluatorConfig struct {
	Beam decoding.BeamConfig
	// MaxConcurrent bounds in-flight beam searches (0 = single-threaded).
	MaxConcurrent int
	// KeepTop truncates each image's hypothesis list (0 = keep all).
	KeepTop int
}

// Evaluator runs beam search over a set of images with bounded concurrency.
type Evaluator struct {
	decoder decoding.Decoder
	cfg     EvaluatorConfig
	sem     *semaphore.Weighted
	logger  *zap.Logger

	// Metrics
	totalDecoded atomic.Int64 // Images captioned successfully
	totalFailed  atomic.Int64 // Images that failed to load or decode
}

// NewEvaluator creates an evaluator over the model's beam-scoring view.
func NewEvaluator(model models.CaptionModel, cfg EvaluatorConfig, logger *zap.Logger) *Evaluator {
	if logger == nil {
		logger = zap.NewNop()
	}
	workers := cfg.MaxConcurrent
	if workers <= 0 {
		workers = 1
	}
	return &Evaluator{
		decoder: model.Beam(),
		cfg:     cfg,
		sem:     semaphore.NewWeighted(int64(workers)),
		logger:  logger,
	}
}

// CaptionAll beam-decodes every image and returns its sorted hypotheses,
// keyed by image ID. The first failure cancels the remaining work.
func (e *Evaluator) CaptionAll(ctx context.Context, source FeatureSource, imageIDs []string) (map[string][]decoding.Hypothesis, error) {
	if len(imageIDs) == 0 {
		return nil, ErrNoImages
	}

	var mu sync.Mutex
	results := make(map[string][]decoding.Hypothesis, len(imageIDs))

	group, ctx := errgroup.WithContext(ctx)
	for _, imageID := range imageIDs {
		if err := e.sem.Acquire(ctx, 1); err != nil {
			break
		}
		group.Go(func() error {
			defer e.sem.Release(1)

			hypotheses, err := e.captionOne(source, imageID)
			if err != nil {
				e.totalFailed.Add(1)
				return err
			}
			e.totalDecoded.Add(1)

			mu.Lock()
			results[imageID] = hypotheses
			mu.Unlock()
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	e.logger.Info("Evaluation run complete",
		zap.Int("images", len(results)),
		zap.Int("beam_width", e.cfg.Beam.BeamWidth))
	return results, nil
}

func (e *Evaluator) captionOne(source FeatureSource, imageID string) ([]decoding.Hypothesis, error) {
	feats, err := source.Load(imageID)
	if err != nil {
		return nil, fmt.Errorf("loading features for %s: %w", imageID, err)
	}
	hypotheses, err := decoding.BeamSearch(e.decoder, feats, e.cfg.Beam)
	if err != nil {
		return nil, fmt.Errorf("beam search for %s: %w", imageID, err)
	}
	if e.cfg.KeepTop > 0 && len(hypotheses) > e.cfg.KeepTop {
		hypotheses = hypotheses[:e.cfg.KeepTop]
	}
	return hypotheses, nil
}

// Stats returns counters accumulated across evaluation runs.
func (e *Evaluator) Stats() EvaluatorStats {
	return EvaluatorStats{
		TotalDecoded: e.totalDecoded.Load(),
		TotalFailed:  e.totalFailed.Load(),
	}
}

// EvaluatorStats holds evaluation counters.
type EvaluatorStats struct {
	TotalDecoded int64 `json:"total_decoded"`
	TotalFailed  int64 `json:"total_failed"`
}
