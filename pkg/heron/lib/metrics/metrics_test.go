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

package metrics

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestCorpusBLEU4PerfectMatch(t *testing.T) {
	refs := [][][]int{{{1, 2, 3, 4, 5}}}
	hyps := [][]int{{1, 2, 3, 4, 5}}

	bleu, err := CorpusBLEU4(refs, hyps)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, bleu, 1e-9)
}

func TestCorpusBLEU4NoOverlap(t *testing.T) {
	refs := [][][]int{{{1, 2, 3, 4, 5}}}
	hyps := [][]int{{6, 7, 8, 9, 10}}

	bleu, err := CorpusBLEU4(refs, hyps)
	require.NoError(t, err)
	assert.Zero(t, bleu)
}

func TestCorpusBLEU4BrevityPenalty(t *testing.T) {
	// The hypothesis matches a prefix of the reference exactly; only the
	// brevity penalty pulls the score below 1.
	refs := [][][]int{{{1, 2, 3, 4, 5, 6, 7, 8}}}
	hyps := [][]int{{1, 2, 3, 4, 5, 6}}

	bleu, err := CorpusBLEU4(refs, hyps)
	require.NoError(t, err)
	assert.Greater(t, bleu, 0.0)
	assert.Less(t, bleu, 1.0)
}

func TestCorpusBLEU4MultipleReferences(t *testing.T) {
	// Clipping is taken against the best-matching reference per n-gram.
	refs := [][][]int{{
		{1, 2, 3, 4, 5},
		{1, 2, 9, 9, 9},
	}}
	hyps := [][]int{{1, 2, 3, 4, 5}}

	bleu, err := CorpusBLEU4(refs, hyps)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, bleu, 1e-9)
}

func TestCorpusBLEU4Errors(t *testing.T) {
	_, err := CorpusBLEU4([][][]int{}, [][]int{})
	assert.Error(t, err)
	_, err = CorpusBLEU4([][][]int{{{1}}}, [][]int{{1}, {2}})
	assert.Error(t, err)
}

func TestAverageMeter(t *testing.T) {
	var m AverageMeter
	m.Update(2, 1)
	m.Update(4, 3)
	assert.Equal(t, 4.0, m.Val)
	assert.Equal(t, 4, m.Count)
	assert.InDelta(t, 3.5, m.Avg, 1e-9)

	m.Reset()
	assert.Zero(t, m.Avg)
	assert.Zero(t, m.Count)
}

func TestTopKAccuracy(t *testing.T) {
	scores := [][]float32{
		{0.1, 0.9, 0.3}, // target 1 is rank 1
		{0.8, 0.2, 0.5}, // target 1 is rank 3
		{0.3, 0.2, 0.9}, // target 2 is rank 1
	}
	targets := []int{1, 1, 2}

	assert.InDelta(t, 100.0*2/3, TopKAccuracy(scores, targets, 1), 1e-9)
	assert.InDelta(t, 100.0*2/3, TopKAccuracy(scores, targets, 2), 1e-9)
	assert.InDelta(t, 100.0, TopKAccuracy(scores, targets, 3), 1e-9)
}

func TestRankCaptionsToImages(t *testing.T) {
	// Two images on orthogonal axes, two captions each: captions align
	// perfectly with their image's axis.
	images := mat.NewDense(2, 2, []float64{
		1, 0,
		0, 1,
	})
	captions := mat.NewDense(4, 2, []float64{
		2, 0,
		1, 0.1,
		0, 3,
		0.1, 1,
	})

	result, err := RankCaptionsToImages(images, captions, 2)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, result.RecallAt1, 1e-9)
	assert.InDelta(t, 1.0, result.RecallAt5, 1e-9)
	assert.InDelta(t, 1.0, result.MedianRank, 1e-9)
	assert.InDelta(t, 1.0, result.MeanRank, 1e-9)
}

func TestRankCaptionsToImagesMismatch(t *testing.T) {
	images := mat.NewDense(2, 2, nil)
	captions := mat.NewDense(3, 2, nil)
	_, err := RankCaptionsToImages(images, captions, 2)
	assert.Error(t, err)
}

func TestPairRecallAtK(t *testing.T) {
	generated := map[string][][]string{
		"1": {{"a", "blue", "car"}, {"a", "car"}},
		"2": {{"a", "red", "bus"}, {"a", "blue", "car"}},
		"3": {{"a", "dog"}},
	}
	match := func(caption []string) (bool, error) {
		return strings.Contains(strings.Join(caption, " "), "blue car"), nil
	}

	recall1, err := PairRecallAtK(generated, match, 1)
	require.NoError(t, err)
	assert.InDelta(t, 1.0/3, recall1, 1e-9)

	recall2, err := PairRecallAtK(generated, match, 2)
	require.NoError(t, err)
	assert.InDelta(t, 2.0/3, recall2, 1e-9)
}
