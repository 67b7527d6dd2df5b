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
	"math"
	"testing"

	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heronml/heron/pkg/heron/lib/decoding"
)

func testConfig() Config {
	return Config{
		VocabSize:    6,
		EmbedDim:     4,
		AttentionDim: 3,
		DecoderDim:   5,
		FeatureDim:   2,
		NumRegions:   3,
	}
}

func testRowFeatures(t *testing.T, rows int) []*decoding.Features {
	t.Helper()
	feats := make([]*decoding.Features, rows)
	for i := range feats {
		feats[i] = decoding.NewFeatures([][]float32{
			{0.1, 0.2},
			{0.3, 0.4},
			{0.5, 0.6},
		})
	}
	return feats
}

func TestTopDownStepShapes(t *testing.T) {
	engine, err := NewEngine("go")
	require.NoError(t, err)
	model, err := NewTopDown(engine, context.New(), testConfig())
	require.NoError(t, err)

	feats := testRowFeatures(t, 2)
	states, err := model.InitStates(feats)
	require.NoError(t, err)
	require.Len(t, states, 2)
	require.Len(t, states[0].AttnHidden, 5)
	require.Len(t, states[0].LangCell, 5)

	result, err := model.Step(states, []int{1, 1}, feats)
	require.NoError(t, err)
	require.Len(t, result.Scores, 2)
	assert.Len(t, result.Scores[0], 6)
	require.Len(t, result.Alphas, 2)
	assert.Len(t, result.Alphas[0], 3)
	require.Len(t, result.States, 2)
	assert.Len(t, result.States[0].LangHidden, 5)

	// Attention weights are a distribution over regions.
	var sum float64
	for _, a := range result.Alphas[0] {
		sum += float64(a)
	}
	assert.InDelta(t, 1.0, sum, 1e-4)
}

func TestTopDownBeamScoresAreLogProbabilities(t *testing.T) {
	engine, err := NewEngine("go")
	require.NoError(t, err)
	model, err := NewTopDown(engine, context.New(), testConfig())
	require.NoError(t, err)

	feats := testRowFeatures(t, 1)
	states, err := model.InitStates(feats)
	require.NoError(t, err)

	result, err := model.Beam().Step(states, []int{1}, feats)
	require.NoError(t, err)

	var probSum float64
	for _, s := range result.Scores[0] {
		assert.LessOrEqual(t, s, float32(0))
		probSum += math.Exp(float64(s))
	}
	assert.InDelta(t, 1.0, probSum, 1e-4)
}

func TestTopDownStepHandlesVaryingBatch(t *testing.T) {
	// Beam search shrinks the active row count; the step primitive must
	// accept whatever batch it is given.
	engine, err := NewEngine("go")
	require.NoError(t, err)
	model, err := NewTopDown(engine, context.New(), testConfig())
	require.NoError(t, err)

	for _, rows := range []int{3, 2, 1} {
		feats := testRowFeatures(t, rows)
		states, err := model.InitStates(feats)
		require.NoError(t, err)
		words := make([]int, rows)
		result, err := model.Step(states, words, feats)
		require.NoError(t, err)
		assert.Len(t, result.Scores, rows)
	}
}

func TestShowAttendTellStepShapes(t *testing.T) {
	engine, err := NewEngine("go")
	require.NoError(t, err)
	model, err := NewShowAttendTell(engine, context.New(), testConfig())
	require.NoError(t, err)

	feats := testRowFeatures(t, 2)
	states, err := model.InitStates(feats)
	require.NoError(t, err)
	require.Len(t, states, 2)
	require.Len(t, states[0].AttnHidden, 5)
	assert.Nil(t, states[0].LangHidden)

	result, err := model.Step(states, []int{1, 1}, feats)
	require.NoError(t, err)
	assert.Len(t, result.Scores[0], 6)
	assert.Len(t, result.Alphas[0], 3)
	assert.Len(t, result.States[0].AttnCell, 5)
}

func TestGreedyDecodeWithTopDown(t *testing.T) {
	engine, err := NewEngine("go")
	require.NoError(t, err)
	model, err := NewTopDown(engine, context.New(), testConfig())
	require.NoError(t, err)

	result, err := decoding.Decode(model, testRowFeatures(t, 2), nil, nil, decoding.DecodeConfig{
		MaxLength:  4,
		StartToken: 1,
		EndToken:   2,
	})
	require.NoError(t, err)
	require.Len(t, result.Scores, 2)
	assert.Len(t, result.Scores[0], 4)
}

func TestBeamSearchWithTopDown(t *testing.T) {
	engine, err := NewEngine("go")
	require.NoError(t, err)
	model, err := NewTopDown(engine, context.New(), testConfig())
	require.NoError(t, err)

	hypotheses, err := decoding.BeamSearch(model.Beam(), testRowFeatures(t, 1)[0], decoding.BeamConfig{
		BeamWidth:  3,
		MaxLength:  4,
		StartToken: 1,
		EndToken:   2,
		KeepAlphas: true,
	})
	require.NoError(t, err)
	require.NotEmpty(t, hypotheses)
	for i := 1; i < len(hypotheses); i++ {
		assert.GreaterOrEqual(t, hypotheses[i-1].Score, hypotheses[i].Score)
	}
}
