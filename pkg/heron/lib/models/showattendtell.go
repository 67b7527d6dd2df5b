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

package models

import (
	"fmt"

	"github.com/gomlx/gomlx/backends"
	"github.com/gomlx/gomlx/pkg/core/dtypes"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/layers"

	"github.com/heronml/heron/pkg/heron/lib/decoding"
)

// ShowAttendTell is the single-stage soft-attention decoder: one LSTM whose
// input combines the word embedding with a gated attention-weighted feature
// sum, and whose initial state is derived from the mean image feature.
type ShowAttendTell struct {
	cfg Config

	stepExec *context.Exec
	beamExec *context.Exec
	initExec *context.Exec
}

// NewShowAttendTell builds the decoder and compiles its step primitives.
func NewShowAttendTell(engine backends.Backend, ctx *context.Context, cfg Config) (*ShowAttendTell, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("show-attend-tell decoder: %w", err)
	}
	m := &ShowAttendTell{cfg: cfg}

	var err error
	if m.stepExec, err = context.NewExecAny(engine, ctx, m.makeStepGraph(false)); err != nil {
		return nil, fmt.Errorf("compiling show-attend-tell step: %w", err)
	}
	if m.beamExec, err = context.NewExecAny(engine, ctx, m.makeStepGraph(true)); err != nil {
		return nil, fmt.Errorf("compiling show-attend-tell beam step: %w", err)
	}
	if m.initExec, err = context.NewExecAny(engine, ctx, func(ctx *context.Context, mean *Node) []*Node {
		return m.initStatesGraph(ctx, mean)
	}); err != nil {
		return nil, fmt.Errorf("compiling show-attend-tell state init: %w", err)
	}
	return m, nil
}

func (m *ShowAttendTell) VocabSize() int { return m.cfg.VocabSize }

// InitStates derives the initial hidden/cell state from each row's mean
// feature. The language-stage state pair stays nil: this decoder has one
// recurrent stage.
func (m *ShowAttendTell) InitStates(feats []*decoding.Features) ([]decoding.RowState, error) {
	outputs, err := m.initExec.Exec(meansBatch(feats))
	if err != nil {
		return nil, fmt.Errorf("show-attend-tell state init: %w", err)
	}
	hidden, err := tensorMatrix(outputs[0])
	if err != nil {
		return nil, fmt.Errorf("show-attend-tell state init: %w", err)
	}
	cell, err := tensorMatrix(outputs[1])
	if err != nil {
		return nil, fmt.Errorf("show-attend-tell state init: %w", err)
	}
	states := make([]decoding.RowState, len(feats))
	for r := range states {
		states[r] = decoding.RowState{AttnHidden: hidden[r], AttnCell: cell[r]}
	}
	return states, nil
}

// Step advances the batch one timestep, returning raw logits.
func (m *ShowAttendTell) Step(states []decoding.RowState, prevWords []int, feats []*decoding.Features) (*decoding.StepResult, error) {
	return m.runStep(m.stepExec, states, prevWords, feats)
}

// Beam returns the log-probability-scoring view used by beam search.
func (m *ShowAttendTell) Beam() decoding.Decoder { return &showAttendTellBeam{m} }

type showAttendTellBeam struct{ *ShowAttendTell }

func (b *showAttendTellBeam) Step(states []decoding.RowState, prevWords []int, feats []*decoding.Features) (*decoding.StepResult, error) {
	return b.runStep(b.beamExec, states, prevWords, feats)
}

func (m *ShowAttendTell) runStep(exec *context.Exec, states []decoding.RowState, prevWords []int, feats []*decoding.Features) (*decoding.StepResult, error) {
	outputs, err := exec.Exec(
		stateBatch(states, func(s decoding.RowState) []float32 { return s.AttnHidden }),
		stateBatch(states, func(s decoding.RowState) []float32 { return s.AttnCell }),
		wordsBatch(prevWords),
		regionsBatch(feats),
	)
	if err != nil {
		return nil, fmt.Errorf("show-attend-tell step: %w", err)
	}

	matrices := make([][][]float32, 4)
	for i, t := range outputs {
		if matrices[i], err = tensorMatrix(t); err != nil {
			return nil, fmt.Errorf("show-attend-tell step: %w", err)
		}
	}
	result := &decoding.StepResult{
		Scores: matrices[0],
		Alphas: matrices[1],
		States: make([]decoding.RowState, len(states)),
	}
	for r := range result.States {
		result.States[r] = decoding.RowState{AttnHidden: matrices[2][r], AttnCell: matrices[3][r]}
	}
	return result, nil
}

// ====================================================================
// Graph builders
// ====================================================================

func (m *ShowAttendTell) makeStepGraph(logProbs bool) func(ctx *context.Context, inputs []*Node) []*Node {
	return func(ctx *context.Context, inputs []*Node) []*Node {
		hidden, cell, prevWords, regions := inputs[0], inputs[1], inputs[2], inputs[3]

		scores, alphas, h, c := m.stepCore(ctx, hidden, cell, prevWords, regions)
		if logProbs {
			scores = LogSoftmax(scores, -1)
		}
		return []*Node{scores, alphas, h, c}
	}
}

func (m *ShowAttendTell) stepCore(ctx *context.Context, hidden, cell, prevWords, regions *Node) (logits, alphas, h, c *Node) {
	ctx = ctx.In("show_attend_tell")

	embedded := layers.Embedding(ctx.In("embedding"), prevWords, dtypes.Float32, m.cfg.VocabSize, m.cfg.EmbedDim)

	attended, alphasOut := softAttention(ctx.In("attention"), regions, hidden, m.cfg.AttentionDim)
	gate := Sigmoid(layers.Dense(ctx.In("gate"), hidden, true, m.cfg.FeatureDim))
	attended = Mul(gate, attended)

	input := Concatenate([]*Node{embedded, attended}, -1)
	h, c = lstmCell(ctx.In("lstm"), input, hidden, cell, m.cfg.DecoderDim)

	logits = layers.Dense(ctx.In("output"), h, true, m.cfg.VocabSize)
	alphas = alphasOut
	return
}

// initStatesGraph maps the mean feature through learned projections,
// mirroring the mean-feature state initialization of the original
// architecture.
func (m *ShowAttendTell) initStatesGraph(ctx *context.Context, mean *Node) []*Node {
	ctx = ctx.In("show_attend_tell").In("init")
	h := Tanh(layers.Dense(ctx.In("hidden"), mean, true, m.cfg.DecoderDim))
	c := Tanh(layers.Dense(ctx.In("cell"), mean, true, m.cfg.DecoderDim))
	return []*Node{h, c}
}

// TrainingGraph unrolls the teacher-forced forward pass; see CaptionModel.
func (m *ShowAttendTell) TrainingGraph(ctx *context.Context, inputs []*Node) []*Node {
	regions, targets, tfMask := inputs[0], inputs[1], inputs[2]
	mean := ReduceMean(regions, 1)

	states := m.initStatesGraph(ctx, mean)
	hidden, cell := states[0], states[1]

	prev := Squeeze(Slice(targets, AxisRange(), AxisElem(0)), 1)
	steps := targets.Shape().Dimensions[1] - 1

	logitsSteps := make([]*Node, 0, steps)
	alphaSteps := make([]*Node, 0, steps)
	for t := 0; t < steps; t++ {
		logits, alphas, h, c := m.stepCore(ctx, hidden, cell, prev, regions)
		logitsSteps = append(logitsSteps, logits)
		alphaSteps = append(alphaSteps, alphas)
		hidden, cell = h, c

		teacher := Squeeze(Slice(targets, AxisRange(), AxisElem(t+1)), 1)
		predicted := ArgMax(logits, -1, dtypes.Int32)
		useTeacher := Squeeze(Slice(tfMask, AxisRange(), AxisElem(t)), 1)
		prev = Where(useTeacher, teacher, predicted)
	}

	return []*Node{Stack(logitsSteps, 1), Stack(alphaSteps, 1)}
}
