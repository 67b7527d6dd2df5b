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
	"fmt"
	"sort"
)

// BeamConfig parameterizes one beam-search call.
type BeamConfig struct {
	// BeamWidth is the number of parallel candidate sequences. Must be
	// positive.
	BeamWidth int
	// MaxLength is the decode length budget (generated tokens, excluding
	// the leading start token).
	MaxLength int
	// StartToken and EndToken are the reserved control token indices.
	StartToken int
	EndToken   int
	// KeepAlphas records the per-step attention weights on each hypothesis.
	KeepAlphas bool
}

// Hypothesis is a finished candidate sequence with its cumulative score.
// Immutable once returned.
type Hypothesis struct {
	// Sequence includes the leading start token and, unless the hypothesis
	// was force-completed at the length budget, the trailing end token.
	Sequence []int
	// Score is the cumulative log-probability of the sequence.
	Score float32
	// Alphas holds one attention-weight vector per generated token when
	// BeamConfig.KeepAlphas is set.
	Alphas [][]float32
}

// beamRow is one active beam slot. Keeping sequence, score, state and
// attention trace in a single record means reordering and pruning move them
// together; there are no parallel arrays to fall out of sync.
type beamRow struct {
	sequence []int
	score    float32
	state    RowState
	alphas   [][]float32
}

// BeamSearch decodes a single image's features into up to BeamWidth
// completed hypotheses, ranked by descending cumulative score.
//
// All active rows start from the same replicated features and the same
// initial state. The first step therefore considers only row 0's scores:
// taking the top-K of identical rows would yield K copies of the single best
// continuation instead of K distinct first words. If per-row priors are ever
// introduced, that shortcut no longer holds.
func BeamSearch(dec Decoder, feats *Features, cfg BeamConfig) ([]Hypothesis, error) {
	if cfg.BeamWidth <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidBeamWidth, cfg.BeamWidth)
	}
	vocabSize := dec.VocabSize()
	if cfg.EndToken < 0 || cfg.EndToken >= vocabSize {
		return nil, fmt.Errorf("%w: end token %d, vocabulary size %d", ErrInvalidEndToken, cfg.EndToken, vocabSize)
	}

	// Replicate the image features across the initial beam width.
	rowFeats := make([]*Features, cfg.BeamWidth)
	for i := range rowFeats {
		rowFeats[i] = feats
	}
	states, err := dec.InitStates(rowFeats)
	if err != nil {
		return nil, fmt.Errorf("initializing decoder state: %w", err)
	}
	if len(states) != cfg.BeamWidth {
		return nil, fmt.Errorf("step primitive returned %d initial states for beam width %d", len(states), cfg.BeamWidth)
	}

	active := make([]*beamRow, cfg.BeamWidth)
	for i := range active {
		active[i] = &beamRow{sequence: []int{cfg.StartToken}, state: states[i]}
	}

	var completed []Hypothesis
	for step := 0; step < cfg.MaxLength && len(active) > 0; step++ {
		width := len(active)
		stepStates := make([]RowState, width)
		prevWords := make([]int, width)
		stepFeats := make([]*Features, width)
		for i, row := range active {
			stepStates[i] = row.state
			prevWords[i] = row.sequence[len(row.sequence)-1]
			stepFeats[i] = feats
		}

		result, err := dec.Step(stepStates, prevWords, stepFeats)
		if err != nil {
			return nil, fmt.Errorf("beam step %d: %w", step, err)
		}
		if len(result.Scores) != width || len(result.States) != width {
			return nil, fmt.Errorf("beam step %d: step primitive returned %d score rows and %d states for width %d",
				step, len(result.Scores), len(result.States), width)
		}

		var flat []float32
		if step == 0 {
			// All rows are identical at step 0; row 0 seeds the beam.
			flat = make([]float32, vocabSize)
			copy(flat, result.Scores[0])
		} else {
			flat = make([]float32, 0, width*vocabSize)
			for i, scores := range result.Scores {
				if len(scores) != vocabSize {
					return nil, fmt.Errorf("beam step %d: row %d scored %d tokens, vocabulary size %d",
						step, i, len(scores), vocabSize)
				}
				for _, s := range scores {
					flat = append(flat, s+active[i].score)
				}
			}
		}

		survivors := topIndices(flat, width)
		next := make([]*beamRow, 0, len(survivors))
		for _, flatIndex := range survivors {
			source := flatIndex / vocabSize
			token := flatIndex % vocabSize

			parent := active[source]
			sequence := make([]int, len(parent.sequence), len(parent.sequence)+1)
			copy(sequence, parent.sequence)
			sequence = append(sequence, token)

			row := &beamRow{
				sequence: sequence,
				score:    flat[flatIndex],
				state:    result.States[source],
			}
			if cfg.KeepAlphas && result.Alphas != nil {
				row.alphas = make([][]float32, len(parent.alphas), len(parent.alphas)+1)
				copy(row.alphas, parent.alphas)
				row.alphas = append(row.alphas, result.Alphas[source])
			}

			if token == cfg.EndToken {
				completed = append(completed, Hypothesis{Sequence: row.sequence, Score: row.score, Alphas: row.alphas})
			} else {
				next = append(next, row)
			}
		}
		active = next
	}

	// Length budget exhausted with beams still running: force-complete them
	// so the caller gets the full beam-width worth of hypotheses.
	if len(completed) < cfg.BeamWidth {
		for _, row := range active {
			completed = append(completed, Hypothesis{Sequence: row.sequence, Score: row.score, Alphas: row.alphas})
		}
	}

	SortHypotheses(completed)
	return completed, nil
}

// SortHypotheses orders hypotheses by descending score, stably: equal scores
// keep their relative order.
func SortHypotheses(hypotheses []Hypothesis) {
	sort.SliceStable(hypotheses, func(i, j int) bool {
		return hypotheses[i].Score > hypotheses[j].Score
	})
}

// topIndices returns the indices of the k largest scores, largest first.
// Ties keep ascending index order, so selection is deterministic.
func topIndices(scores []float32, k int) []int {
	if k > len(scores) {
		k = len(scores)
	}
	indices := make([]int, len(scores))
	for i := range indices {
		indices[i] = i
	}
	sort.SliceStable(indices, func(a, b int) bool {
		return scores[indices[a]] > scores[indices[b]]
	})
	return indices[:k]
}
