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
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/layers"

	"github.com/heronml/heron/pkg/heron/lib/decoding"
)

// CaptionModel is the capability surface shared by the decoder variants: the
// greedy/teacher-forced step primitive, a beam-search view of the same
// weights scoring in log-probabilities, and the unrolled training graph.
type CaptionModel interface {
	decoding.Decoder
	// Beam returns a step primitive over the same weights whose scores are
	// log-softmaxed, so accumulated beam scores are cumulative
	// log-probabilities.
	Beam() decoding.Decoder
	// TrainingGraph unrolls the teacher-forced forward pass. Inputs:
	// regions [batch, regions, featDim] float32, targets [batch, maxLen]
	// int32, teacher-forcing mask [batch, maxLen-1] bool. Outputs: logits
	// [batch, maxLen-1, vocab] and alphas [batch, maxLen-1, regions].
	TrainingGraph(ctx *context.Context, inputs []*Node) []*Node
}

// TopDown is the bottom-up-top-down decoder: an attention LSTM conditioned
// on the global image context, visual attention over region features, and a
// language LSTM producing vocabulary scores.
type TopDown struct {
	cfg Config

	stepExec *context.Exec
	beamExec *context.Exec
	initExec *context.Exec
}

// NewTopDown builds the decoder and compiles its step primitives against the
// given engine. Weights live in ctx and are shared with the training graph.
func NewTopDown(engine backends.Backend, ctx *context.Context, cfg Config) (*TopDown, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("top-down decoder: %w", err)
	}
	m := &TopDown{cfg: cfg}

	var err error
	if m.stepExec, err = context.NewExecAny(engine, ctx, m.makeStepGraph(false)); err != nil {
		return nil, fmt.Errorf("compiling top-down step: %w", err)
	}
	if m.beamExec, err = context.NewExecAny(engine, ctx, m.makeStepGraph(true)); err != nil {
		return nil, fmt.Errorf("compiling top-down beam step: %w", err)
	}
	if m.initExec, err = context.NewExecAny(engine, ctx, func(ctx *context.Context, mean *Node) []*Node {
		return m.initStatesGraph(ctx, mean)
	}); err != nil {
		return nil, fmt.Errorf("compiling top-down state init: %w", err)
	}
	return m, nil
}

func (m *TopDown) VocabSize() int { return m.cfg.VocabSize }

// InitStates replicates the learned initial state across rows.
func (m *TopDown) InitStates(feats []*decoding.Features) ([]decoding.RowState, error) {
	outputs, err := m.initExec.Exec(meansBatch(feats))
	if err != nil {
		return nil, fmt.Errorf("top-down state init: %w", err)
	}
	matrices := make([][][]float32, 4)
	for i, t := range outputs {
		if matrices[i], err = tensorMatrix(t); err != nil {
			return nil, fmt.Errorf("top-down state init: %w", err)
		}
	}
	states := make([]decoding.RowState, len(feats))
	for r := range states {
		states[r] = decoding.RowState{
			AttnHidden: matrices[0][r],
			AttnCell:   matrices[1][r],
			LangHidden: matrices[2][r],
			LangCell:   matrices[3][r],
		}
	}
	return states, nil
}

// Step advances the batch one timestep, returning raw logits.
func (m *TopDown) Step(states []decoding.RowState, prevWords []int, feats []*decoding.Features) (*decoding.StepResult, error) {
	return m.runStep(m.stepExec, states, prevWords, feats)
}

// Beam returns the log-probability-scoring view used by beam search.
func (m *TopDown) Beam() decoding.Decoder { return &topDownBeam{m} }

type topDownBeam struct{ *TopDown }

func (b *topDownBeam) Step(states []decoding.RowState, prevWords []int, feats []*decoding.Features) (*decoding.StepResult, error) {
	return b.runStep(b.beamExec, states, prevWords, feats)
}

func (m *TopDown) runStep(exec *context.Exec, states []decoding.RowState, prevWords []int, feats []*decoding.Features) (*decoding.StepResult, error) {
	outputs, err := exec.Exec(
		stateBatch(states, func(s decoding.RowState) []float32 { return s.AttnHidden }),
		stateBatch(states, func(s decoding.RowState) []float32 { return s.AttnCell }),
		stateBatch(states, func(s decoding.RowState) []float32 { return s.LangHidden }),
		stateBatch(states, func(s decoding.RowState) []float32 { return s.LangCell }),
		wordsBatch(prevWords),
		regionsBatch(feats),
		meansBatch(feats),
	)
	if err != nil {
		return nil, fmt.Errorf("top-down step: %w", err)
	}

	matrices := make([][][]float32, 6)
	for i, t := range outputs {
		if matrices[i], err = tensorMatrix(t); err != nil {
			return nil, fmt.Errorf("top-down step: %w", err)
		}
	}
	result := &decoding.StepResult{
		Scores: matrices[0],
		Alphas: matrices[1],
		States: make([]decoding.RowState, len(states)),
	}
	for r := range result.States {
		result.States[r] = decoding.RowState{
			AttnHidden: matrices[2][r],
			AttnCell:   matrices[3][r],
			LangHidden: matrices[4][r],
			LangCell:   matrices[5][r],
		}
	}
	return result, nil
}

// ====================================================================
// Graph builders
// ====================================================================

func (m *TopDown) makeStepGraph(logProbs bool) func(ctx *context.Context, inputs []*Node) []*Node {
	return func(ctx *context.Context, inputs []*Node) []*Node {
		attnH, attnC, langH, langC := inputs[0], inputs[1], inputs[2], inputs[3]
		prevWords, regions, mean := inputs[4], inputs[5], inputs[6]

		scores, alphas, aH, aC, lH, lC := m.stepCore(ctx, attnH, attnC, langH, langC, prevWords, regions, mean)
		if logProbs {
			scores = LogSoftmax(scores, -1)
		}
		return []*Node{scores, alphas, aH, aC, lH, lC}
	}
}

// stepCore is the two-stage forward pass shared by the compiled step
// primitives and the unrolled training graph.
func (m *TopDown) stepCore(ctx *context.Context, attnH, attnC, langH, langC, prevWords, regions, mean *Node) (logits, alphas, aH, aC, lH, lC *Node) {
	ctx = ctx.In("top_down")

	embedded := layers.Embedding(ctx.In("embedding"), prevWords, dtypes.Float32, m.cfg.VocabSize, m.cfg.EmbedDim)

	attnInput := Concatenate([]*Node{langH, mean, embedded}, -1)
	aH, aC = lstmCell(ctx.In("attention_lstm"), attnInput, attnH, attnC, m.cfg.DecoderDim)

	attended, alphasOut := softAttention(ctx.In("attention"), regions, aH, m.cfg.AttentionDim)

	langInput := Concatenate([]*Node{attended, aH}, -1)
	lH, lC = lstmCell(ctx.In("language_lstm"), langInput, langH, langC, m.cfg.DecoderDim)

	logits = layers.Dense(ctx.In("output"), lH, true, m.cfg.VocabSize)
	alphas = alphasOut
	return
}

// initStatesGraph broadcasts the learned initial state vectors across the
// batch. mean is only used for its batch dimension here; the
// show-attend-tell variant derives its initial state from it.
func (m *TopDown) initStatesGraph(ctx *context.Context, mean *Node) []*Node {
	ctx = ctx.In("top_down").In("init")
	g := mean.Graph()
	rows := mean.Shape().Dimensions[0]
	target := shapes.Make(dtypes.Float32, rows, m.cfg.DecoderDim)

	zero := make([]float32, m.cfg.DecoderDim)
	names := []string{"attn_hidden", "attn_cell", "lang_hidden", "lang_cell"}
	states := make([]*Node, len(names))
	for i, name := range names {
		value := ctx.VariableWithValue(name, zero).ValueGraph(g)
		states[i] = BroadcastToShape(ExpandDims(value, 0), target)
	}
	return states
}

// TrainingGraph unrolls the teacher-forced forward pass; see CaptionModel.
func (m *TopDown) TrainingGraph(ctx *context.Context, inputs []*Node) []*Node {
	regions, targets, tfMask := inputs[0], inputs[1], inputs[2]
	mean := ReduceMean(regions, 1)

	states := m.initStatesGraph(ctx, mean)
	attnH, attnC, langH, langC := states[0], states[1], states[2], states[3]

	prev := Squeeze(Slice(targets, AxisRange(), AxisElem(0)), 1)
	steps := targets.Shape().Dimensions[1] - 1

	logitsSteps := make([]*Node, 0, steps)
	alphaSteps := make([]*Node, 0, steps)
	for t := 0; t < steps; t++ {
		logits, alphas, aH, aC, lH, lC := m.stepCore(ctx, attnH, attnC, langH, langC, prev, regions, mean)
		logitsSteps = append(logitsSteps, logits)
		alphaSteps = append(alphaSteps, alphas)
		attnH, attnC, langH, langC = aH, aC, lH, lC

		teacher := Squeeze(Slice(targets, AxisRange(), AxisElem(t+1)), 1)
		predicted := ArgMax(logits, -1, dtypes.Int32)
		useTeacher := Squeeze(Slice(tfMask, AxisRange(), AxisElem(t)), 1)
		prev = Where(useTeacher, teacher, predicted)
	}

	return []*Node{Stack(logitsSteps, 1), Stack(alphaSteps, 1)}
}
