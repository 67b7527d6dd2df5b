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

package decoding

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// catThenEnd scores "cat" highest on the first step and the end token
// highest afterwards.
func catThenEnd(call, row, prevWord int) []float32 {
	if call == 0 {
		return scoresFavoring(tokCat)
	}
	return scoresFavoring(tokEnd)
}

func TestBeamSearchEndToEnd(t *testing.T) {
	dec := &scriptedDecoder{vocabSize: testVocabSize, score: catThenEnd}

	hypotheses, err := BeamSearch(dec, testFeatures(), BeamConfig{
		BeamWidth:  2,
		MaxLength:  4,
		StartToken: tokStart,
		EndToken:   tokEnd,
	})
	require.NoError(t, err)

	require.NotEmpty(t, hypotheses)
	require.LessOrEqual(t, len(hypotheses), 2)
	assert.Equal(t, []int{tokStart, tokCat, tokEnd}, hypotheses[0].Sequence)
	for _, h := range hypotheses {
		assert.Equal(t, tokEnd, h.Sequence[len(h.Sequence)-1])
	}
	// Ranked by descending cumulative score.
	for i := 1; i < len(hypotheses); i++ {
		assert.GreaterOrEqual(t, hypotheses[i-1].Score, hypotheses[i].Score)
	}
}

func TestBeamSearchFirstStepDistinctness(t *testing.T) {
	dec := &scriptedDecoder{vocabSize: testVocabSize, score: catThenEnd}

	_, err := BeamSearch(dec, testFeatures(), BeamConfig{
		BeamWidth:  3,
		MaxLength:  4,
		StartToken: tokStart,
		EndToken:   tokEnd,
	})
	require.NoError(t, err)

	// After step 0 the active rows must carry distinct first words, not
	// three copies of the single best token.
	require.GreaterOrEqual(t, len(dec.prevWords), 2)
	seen := make(map[int]bool)
	for _, word := range dec.prevWords[1] {
		assert.False(t, seen[word], "duplicate first word %d", word)
		seen[word] = true
	}
}

func TestBeamSearchWidthMonotonicityAndConservation(t *testing.T) {
	// The end token becomes the best continuation one row at a time: rows
	// whose previous word is "cat" finish, rows on "dog" keep running.
	dec := &scriptedDecoder{
		vocabSize: testVocabSize,
		score: func(call, row, prevWord int) []float32 {
			switch {
			case call == 0:
				return scoresFavoring(tokCat)
			case prevWord == tokCat:
				return scoresFavoring(tokEnd)
			default:
				return scoresFavoring(tokDog)
			}
		},
	}

	hypotheses, err := BeamSearch(dec, testFeatures(), BeamConfig{
		BeamWidth:  3,
		MaxLength:  6,
		StartToken: tokStart,
		EndToken:   tokEnd,
	})
	require.NoError(t, err)

	for i := 1; i < len(dec.widths); i++ {
		assert.LessOrEqual(t, dec.widths[i], dec.widths[i-1])
	}
	// Completed hypotheses plus force-completed leftovers account for the
	// full beam width.
	assert.Len(t, hypotheses, 3)
}

func TestBeamSearchDeterminism(t *testing.T) {
	run := func() []Hypothesis {
		dec := &scriptedDecoder{vocabSize: testVocabSize, score: catThenEnd}
		hypotheses, err := BeamSearch(dec, testFeatures(), BeamConfig{
			BeamWidth:  2,
			MaxLength:  4,
			StartToken: tokStart,
			EndToken:   tokEnd,
		})
		require.NoError(t, err)
		return hypotheses
	}
	assert.Equal(t, run(), run())
}

func TestBeamSearchForceCompletion(t *testing.T) {
	// The end token never wins: every beam hits the length budget.
	dec := &scriptedDecoder{
		vocabSize: testVocabSize,
		score: func(call, row, prevWord int) []float32 {
			return scoresFavoring(tokCat)
		},
	}

	hypotheses, err := BeamSearch(dec, testFeatures(), BeamConfig{
		BeamWidth:  2,
		MaxLength:  3,
		StartToken: tokStart,
		EndToken:   tokEnd,
	})
	require.NoError(t, err)

	require.Len(t, hypotheses, 2)
	for _, h := range hypotheses {
		// Start token plus MaxLength generated tokens, no end token.
		assert.Len(t, h.Sequence, 4)
		assert.NotEqual(t, tokEnd, h.Sequence[len(h.Sequence)-1])
	}
}

func TestBeamSearchSequenceLengths(t *testing.T) {
	// A hypothesis completing at step s has length s+2: the start token
	// plus one token per step.
	dec := &scriptedDecoder{vocabSize: testVocabSize, score: catThenEnd}

	hypotheses, err := BeamSearch(dec, testFeatures(), BeamConfig{
		BeamWidth:  2,
		MaxLength:  6,
		StartToken: tokStart,
		EndToken:   tokEnd,
	})
	require.NoError(t, err)
	require.Len(t, hypotheses, 2)
	assert.Equal(t, tokStart, hypotheses[0].Sequence[0])
	assert.Len(t, hypotheses[0].Sequence, 3) // completed at step 1
	assert.Len(t, hypotheses[1].Sequence, 4) // completed at step 2
}

func TestBeamSearchKeepAlphas(t *testing.T) {
	dec := &scriptedDecoder{vocabSize: testVocabSize, score: catThenEnd, withAlphas: true}

	hypotheses, err := BeamSearch(dec, testFeatures(), BeamConfig{
		BeamWidth:  2,
		MaxLength:  4,
		StartToken: tokStart,
		EndToken:   tokEnd,
		KeepAlphas: true,
	})
	require.NoError(t, err)

	require.NotEmpty(t, hypotheses)
	top := hypotheses[0]
	// One attention map per generated token.
	require.Len(t, top.Alphas, len(top.Sequence)-1)
	assert.Equal(t, []float32{0.5, 0.5}, top.Alphas[0])
}

func TestBeamSearchConfigurationErrors(t *testing.T) {
	dec := &scriptedDecoder{vocabSize: testVocabSize, score: catThenEnd}

	_, err := BeamSearch(dec, testFeatures(), BeamConfig{BeamWidth: 0, MaxLength: 4, EndToken: tokEnd})
	assert.ErrorIs(t, err, ErrInvalidBeamWidth)

	_, err = BeamSearch(dec, testFeatures(), BeamConfig{BeamWidth: 2, MaxLength: 4, EndToken: testVocabSize})
	assert.ErrorIs(t, err, ErrInvalidEndToken)
}

func TestSortHypothesesStable(t *testing.T) {
	hypotheses := []Hypothesis{
		{Sequence: []int{0}, Score: 0.9},
		{Sequence: []int{1}, Score: 0.5},
		{Sequence: []int{2}, Score: 0.9},
		{Sequence: []int{3}, Score: 0.1},
	}
	SortHypotheses(hypotheses)

	assert.Equal(t, []float32{0.9, 0.9, 0.5, 0.1},
		[]float32{hypotheses[0].Score, hypotheses[1].Score, hypotheses[2].Score, hypotheses[3].Score})
	// Equal scores keep their original relative order.
	assert.Equal(t, []int{0}, hypotheses[0].Sequence)
	assert.Equal(t, []int{2}, hypotheses[1].Sequence)
}
