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

package training

import (
	"fmt"
	"io"

	"github.com/gomlx/gomlx/backends"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/context/checkpoints"
	"github.com/gomlx/gomlx/pkg/ml/train"
	"github.com/gomlx/gomlx/pkg/ml/train/optimizers"
	"go.uber.org/zap"

	"github.com/heronml/heron/pkg/heron/lib/decoding"
	"github.com/heronml/heron/pkg/heron/lib/metrics"
	"github.com/heronml/heron/pkg/heron/lib/models"
)

// TrainConfig parameterizes a training run.
type TrainConfig struct {
	Epochs       int
	LearningRate float64
	// GradClip bounds each optimizer step elementwise.
	GradClip float64
	// AlphaC weighs the doubly-stochastic attention penalty.
	AlphaC float64
	// DecayAfter is the improvement-free epoch interval after which the
	// learning rate is multiplied by DecayFactor.
	DecayAfter  int
	DecayFactor float64
	// EarlyStopAfter stops the run after this many improvement-free epochs.
	EarlyStopAfter int
	// MaxLength bounds greedy decoding during validation.
	MaxLength  int
	StartToken int
	EndToken   int
	PadToken   int
	// CheckpointDir, when set, receives weight snapshots after every epoch.
	CheckpointDir   string
	CheckpointsKept int
}

// DefaultTrainConfig mirrors the hyperparameters the decoders were tuned
// with.
func DefaultTrainConfig() TrainConfig {
	return TrainConfig{
		Epochs:          120,
		LearningRate:    1e-4,
		GradClip:        5.0,
		AlphaC:          1.0,
		DecayAfter:      8,
		DecayFactor:     0.8,
		EarlyStopAfter:  20,
		MaxLength:       50,
		CheckpointsKept: 5,
	}
}

func (c TrainConfig) validate() error {
	if c.Epochs <= 0 {
		return fmt.Errorf("epochs must be positive, got %d", c.Epochs)
	}
	if c.LearningRate <= 0 {
		return fmt.Errorf("learning rate must be positive, got %g", c.LearningRate)
	}
	if c.DecayAfter <= 0 || c.DecayFactor <= 0 || c.DecayFactor >= 1 {
		return fmt.Errorf("decay schedule invalid: after %d epochs, factor %g", c.DecayAfter, c.DecayFactor)
	}
	if c.MaxLength <= 0 {
		return fmt.Errorf("max decode length must be positive, got %d", c.MaxLength)
	}
	return nil
}

// ValSample pairs one image's features with its reference captions, encoded
// as token sequences without control tokens.
type ValSample struct {
	Features   *decoding.Features
	References [][]int
}

// Trainer runs the epoch loop for a caption decoder: gradient steps over the
// training set, greedy-decode BLEU-4 on the validation set, learning-rate
// decay and early stopping keyed on validation improvement, and
// checkpointing.
type Trainer struct {
	cfg     TrainConfig
	engine  backends.Backend
	ctx     *context.Context
	model   models.CaptionModel
	logger  *zap.Logger
	session *Session

	learningRate float64
}

// New builds a trainer. session may carry state from a resumed run; pass a
// zero-value session for a fresh one.
func New(engine backends.Backend, ctx *context.Context, model models.CaptionModel, cfg TrainConfig, session *Session, logger *zap.Logger) (*Trainer, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("training config: %w", err)
	}
	return &Trainer{
		cfg:          cfg,
		engine:       engine,
		ctx:          ctx,
		model:        model,
		logger:       logger,
		session:      session,
		learningRate: cfg.LearningRate,
	}, nil
}

// Run trains until the epoch budget or the early-stopping patience is
// exhausted, whichever comes first.
func (t *Trainer) Run(trainData *CaptionDataset, valData []ValSample) error {
	t.ctx.SetParams(map[string]any{
		optimizers.ParamLearningRate:    t.learningRate,
		optimizers.ParamClipStepByValue: t.cfg.GradClip,
	})

	modelFn := func(ctx *context.Context, _ any, inputs []*Node) []*Node {
		return t.model.TrainingGraph(ctx, inputs)
	}
	trainer := train.NewTrainer(t.engine, t.ctx, modelFn,
		models.NewCaptionLoss(t.cfg.AlphaC),
		optimizers.Adam().Done(),
		nil, nil)

	var checkpoint *checkpoints.Handler
	if t.cfg.CheckpointDir != "" {
		var err error
		checkpoint, err = checkpoints.Build(t.ctx).
			Dir(t.cfg.CheckpointDir).
			Keep(t.cfg.CheckpointsKept).
			Done()
		if err != nil {
			return fmt.Errorf("opening checkpoint dir %s: %w", t.cfg.CheckpointDir, err)
		}
	}

	for t.session.Epoch < t.cfg.Epochs {
		if t.session.EpochsSinceImprovement >= t.cfg.EarlyStopAfter {
			t.logger.Info("stopping early",
				zap.Int("epoch", t.session.Epoch),
				zap.Int("epochs_since_improvement", t.session.EpochsSinceImprovement))
			break
		}
		if t.session.EpochsSinceImprovement > 0 && t.session.EpochsSinceImprovement%t.cfg.DecayAfter == 0 {
			t.decayLearningRate()
		}

		epoch := t.session.Epoch
		loss, err := t.trainEpoch(trainer, trainData)
		if err != nil {
			return fmt.Errorf("epoch %d: %w", epoch, err)
		}

		bleu4, err := t.validate(valData)
		if err != nil {
			return fmt.Errorf("epoch %d validation: %w", epoch, err)
		}
		improved := t.session.RecordValidation(bleu4)

		t.logger.Info("epoch complete",
			zap.Int("epoch", epoch),
			zap.Float64("loss", loss),
			zap.Float64("bleu4", bleu4),
			zap.Float64("best_bleu4", t.session.BestBleu4),
			zap.Bool("improved", improved))

		if checkpoint != nil {
			if err := checkpoint.Save(); err != nil {
				return fmt.Errorf("epoch %d checkpoint: %w", epoch, err)
			}
		}
	}
	return nil
}

func (t *Trainer) trainEpoch(trainer *train.Trainer, data *CaptionDataset) (float64, error) {
	meter := &metrics.AverageMeter{}
	data.Reset()
	for {
		spec, inputs, labels, err := data.Yield()
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, fmt.Errorf("reading batch: %w", err)
		}
		stepMetrics, err := trainer.TrainStep(spec, inputs, labels)
		if err != nil {
			return 0, fmt.Errorf("train step: %w", err)
		}
		loss, ok := stepMetrics[0].Value().(float32)
		if !ok {
			return 0, fmt.Errorf("train step: unexpected loss type %T", stepMetrics[0].Value())
		}
		meter.Update(float64(loss), 1)
	}
	return meter.Avg, nil
}

// validate greedily decodes every validation image and scores the argmax
// sequences against the references with corpus BLEU-4.
func (t *Trainer) validate(valData []ValSample) (float64, error) {
	if len(valData) == 0 {
		return 0, nil
	}
	feats := make([]*decoding.Features, len(valData))
	for i, s := range valData {
		feats[i] = s.Features
	}
	result, err := decoding.Decode(t.model, feats, nil, nil, decoding.DecodeConfig{
		MaxLength:  t.cfg.MaxLength,
		StartToken: t.cfg.StartToken,
		EndToken:   t.cfg.EndToken,
	})
	if err != nil {
		return 0, fmt.Errorf("decoding validation batch: %w", err)
	}

	references := make([][][]int, len(valData))
	hypotheses := make([][]int, len(valData))
	for i, s := range valData {
		references[i] = s.References
		hypotheses[i] = t.stripControl(t.argmaxSequence(result, i))
	}
	return metrics.CorpusBLEU4(references, hypotheses)
}

func (t *Trainer) argmaxSequence(result *decoding.DecodeResult, row int) []int {
	sequence := make([]int, 0, result.Lengths[row])
	for step := 0; step < result.Lengths[row]; step++ {
		sequence = append(sequence, decoding.Argmax(result.Scores[row][step]))
	}
	return sequence
}

func (t *Trainer) stripControl(sequence []int) []int {
	stripped := make([]int, 0, len(sequence))
	for _, token := range sequence {
		switch token {
		case t.cfg.PadToken, t.cfg.StartToken, t.cfg.EndToken:
		default:
			stripped = append(stripped, token)
		}
	}
	return stripped
}

func (t *Trainer) decayLearningRate() {
	previous := t.learningRate
	t.learningRate *= t.cfg.DecayFactor
	t.ctx.SetParam(optimizers.ParamLearningRate, t.learningRate)
	t.logger.Info("decaying learning rate",
		zap.Float64("from", previous),
		zap.Float64("to", t.learningRate))
}
