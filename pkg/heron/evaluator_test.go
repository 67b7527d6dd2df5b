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
	"fmt"
	"testing"

	. "github.com/gomlx/gomlx/pkg/core/graph"
	mlcontext "github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heronml/heron/pkg/heron/lib/decoding"
)

// stubDecoder emits the token encoded in each row's mean feature, then the
// end token. Distinct feature values give distinct captions, which lets the
// tests tell images apart.
type stubDecoder struct{}

func (d *stubDecoder) VocabSize() int { return 6 }

func (d *stubDecoder) InitStates(feats []*decoding.Features) ([]decoding.RowState, error) {
	return make([]decoding.RowState, len(feats)), nil
}

func (d *stubDecoder) Step(states []decoding.RowState, prevWords []int, feats []*decoding.Features) (*decoding.StepResult, error) {
	scores := make([][]float32, len(states))
	for r := range scores {
		scores[r] = make([]float32, d.VocabSize())
		for v := range scores[r] {
			scores[r][v] = -10
		}
		favored := 2 // end token
		if prevWords[r] == 1 {
			favored = int(feats[r].Mean[0])
		}
		scores[r][favored] = -1
	}
	return &decoding.StepResult{Scores: scores, States: states}, nil
}

type stubModel struct{ stubDecoder }

func (m *stubModel) Beam() decoding.Decoder { return &m.stubDecoder }

func (m *stubModel) TrainingGraph(ctx *mlcontext.Context, inputs []*Node) []*Node {
	return inputs
}

// mapSource serves features from memory.
type mapSource map[string]*decoding.Features

func (s mapSource) Load(imageID string) (*decoding.Features, error) {
	feats, ok := s[imageID]
	if !ok {
		return nil, fmt.Errorf("image not found: %s", imageID)
	}
	return feats, nil
}

func testSource() mapSource {
	return mapSource{
		"a": decoding.NewFeatures([][]float32{{3}}),
		"b": decoding.NewFeatures([][]float32{{4}}),
		"c": decoding.NewFeatures([][]float32{{5}}),
	}
}

func testEvaluatorConfig() EvaluatorConfig {
	return EvaluatorConfig{
		Beam: decoding.BeamConfig{
			BeamWidth:  2,
			MaxLength:  4,
			StartToken: 1,
			EndToken:   2,
		},
		MaxConcurrent: 2,
	}
}

func TestEvaluatorCaptionAll(t *testing.T) {
	evaluator := NewEvaluator(&stubModel{}, testEvaluatorConfig(), nil)

	results, err := evaluator.CaptionAll(context.Background(), testSource(), []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, results, 3)

	expected := map[string]int{"a": 3, "b": 4, "c": 5}
	for imageID, token := range expected {
		require.NotEmpty(t, results[imageID], imageID)
		assert.Equal(t, []int{1, token, 2}, results[imageID][0].Sequence, imageID)
	}
	assert.Equal(t, int64(3), evaluator.Stats().TotalDecoded)
}

func TestEvaluatorKeepTop(t *testing.T) {
	cfg := testEvaluatorConfig()
	cfg.KeepTop = 1
	evaluator := NewEvaluator(&stubModel{}, cfg, nil)

	results, err := evaluator.CaptionAll(context.Background(), testSource(), []string{"a"})
	require.NoError(t, err)
	assert.Len(t, results["a"], 1)
}

func TestEvaluatorMissingImage(t *testing.T) {
	evaluator := NewEvaluator(&stubModel{}, testEvaluatorConfig(), nil)

	_, err := evaluator.CaptionAll(context.Background(), testSource(), []string{"a", "missing"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing")
	assert.Equal(t, int64(1), evaluator.Stats().TotalFailed)
}

func TestEvaluatorNoImages(t *testing.T) {
	evaluator := NewEvaluator(&stubModel{}, testEvaluatorConfig(), nil)

	_, err := evaluator.CaptionAll(context.Background(), testSource(), nil)
	assert.ErrorIs(t, err, ErrNoImages)
}
