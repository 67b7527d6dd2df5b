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
	"math/rand"
)

// DecodeConfig parameterizes the teacher-forced/greedy decode loop.
type DecodeConfig struct {
	// MaxLength is the decode length budget (number of generated tokens,
	// excluding the leading start token).
	MaxLength int
	// StartToken and EndToken are the reserved control token indices.
	StartToken int
	EndToken   int
	// TeacherForcingRatio is the per-step probability of feeding the
	// ground-truth next token instead of the argmax prediction. Only
	// meaningful when targets are supplied.
	TeacherForcingRatio float64
	// Rand is the randomness source for the teacher-forcing coin flip.
	// Required when TeacherForcingRatio > 0; injected so tests can
	// substitute a deterministic source.
	Rand *rand.Rand
}

// DecodeResult is the output of one decode-loop call over a batch.
type DecodeResult struct {
	// Scores is indexed [row][step][token]. Steps beyond a row's decode
	// length are zero-filled.
	Scores [][][]float32
	// Alphas is indexed [row][step][region]; nil when the step primitive
	// does not expose attention weights.
	Alphas [][][]float32
	// Lengths is the actual decode length used per row, clamped at the step
	// where the row emitted the end token.
	Lengths []int
}

// Decode drives the step primitive across a fixed batch of rows for up to
// MaxLength timesteps. feats holds one feature view per row. targets, when
// non-nil, supplies ground-truth sequences (with leading start token) for
// teacher forcing. lengths, when non-nil, supplies per-row decode lengths;
// otherwise every row uses MaxLength.
//
// Every step invokes the primitive for the full batch, finished rows
// included, so batch shapes stay uniform; scores of finished rows are
// discarded. The loop terminates early once every row's decode length has
// been reached.
func Decode(dec Decoder, feats []*Features, targets [][]int, lengths []int, cfg DecodeConfig) (*DecodeResult, error) {
	rows := len(feats)
	if rows == 0 {
		return nil, ErrEmptyBatch
	}
	if cfg.EndToken < 0 || cfg.EndToken >= dec.VocabSize() {
		return nil, fmt.Errorf("%w: end token %d, vocabulary size %d", ErrInvalidEndToken, cfg.EndToken, dec.VocabSize())
	}
	if targets != nil && len(targets) != rows {
		return nil, fmt.Errorf("targets batch size %d does not match features batch size %d", len(targets), rows)
	}
	if cfg.TeacherForcingRatio > 0 && targets != nil && cfg.Rand == nil {
		return nil, fmt.Errorf("teacher forcing requires a randomness source")
	}

	decodeLengths := make([]int, rows)
	if lengths != nil {
		if len(lengths) != rows {
			return nil, fmt.Errorf("lengths batch size %d does not match features batch size %d", len(lengths), rows)
		}
		copy(decodeLengths, lengths)
	} else {
		for i := range decodeLengths {
			decodeLengths[i] = cfg.MaxLength
		}
	}
	maxSteps := 0
	for _, l := range decodeLengths {
		if l > maxSteps {
			maxSteps = l
		}
	}

	result := &DecodeResult{
		Scores:  make([][][]float32, rows),
		Lengths: decodeLengths,
	}
	for i := range result.Scores {
		result.Scores[i] = make([][]float32, maxSteps)
		for t := range result.Scores[i] {
			result.Scores[i][t] = make([]float32, dec.VocabSize())
		}
	}

	states, err := dec.InitStates(feats)
	if err != nil {
		return nil, fmt.Errorf("initializing decoder state: %w", err)
	}
	if len(states) != rows {
		return nil, fmt.Errorf("step primitive returned %d initial states for %d rows", len(states), rows)
	}

	prevWords := make([]int, rows)
	for i := range prevWords {
		prevWords[i] = cfg.StartToken
	}

	for t := 0; t < maxSteps; t++ {
		// Rows that emitted the end token at the previous step stop
		// accumulating length; the loop keeps running for the others.
		for i := range prevWords {
			if prevWords[i] == cfg.EndToken && decodeLengths[i] > t {
				decodeLengths[i] = t
			}
		}
		finished := true
		for i := range decodeLengths {
			if decodeLengths[i] > t {
				finished = false
				break
			}
		}
		if finished {
			break
		}

		step, err := dec.Step(states, prevWords, feats)
		if err != nil {
			return nil, fmt.Errorf("decode step %d: %w", t, err)
		}
		if len(step.Scores) != rows || len(step.States) != rows {
			return nil, fmt.Errorf("decode step %d: step primitive returned %d score rows and %d states for %d rows",
				t, len(step.Scores), len(step.States), rows)
		}

		useTargets := targets != nil && cfg.Rand != nil && cfg.Rand.Float64() < cfg.TeacherForcingRatio
		for i := range prevWords {
			if useTargets && t+1 < len(targets[i]) {
				prevWords[i] = targets[i][t+1]
			} else {
				prevWords[i] = Argmax(step.Scores[i])
			}
			if decodeLengths[i] > t {
				copy(result.Scores[i][t], step.Scores[i])
				if step.Alphas != nil {
					if result.Alphas == nil {
						result.Alphas = make([][][]float32, rows)
					}
					if result.Alphas[i] == nil {
						result.Alphas[i] = make([][]float32, maxSteps)
					}
					result.Alphas[i][t] = step.Alphas[i]
				}
			}
		}
		states = step.States
	}

	return result, nil
}
