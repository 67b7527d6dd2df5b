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

// Package decoding implements the caption decoding control algorithms: the
// teacher-forced/greedy decode loop and beam search over a stateful step
// primitive. The numeric model forward pass is injected as a Decoder; this
// package owns only the control flow around it.
package decoding

import (
	"errors"
)

// Sentinel configuration errors.
var (
	ErrInvalidBeamWidth = errors.New("beam width must be positive")
	ErrInvalidEndToken  = errors.New("end token index outside vocabulary")
	ErrEmptyBatch       = errors.New("decode batch is empty")
)

// Features is the read-only per-image feature view consumed by a step
// primitive: Regions has one fixed-size vector per image region, Mean is
// their mean-pooled average. Shared across all timesteps and beam rows of a
// decode call; never mutated.
type Features struct {
	Regions [][]float32
	Mean    []float32
}

// NewFeatures wraps region vectors and computes their mean pooling.
func NewFeatures(regions [][]float32) *Features {
	f := &Features{Regions: regions}
	if len(regions) == 0 {
		return f
	}
	f.Mean = make([]float32, len(regions[0]))
	for _, region := range regions {
		for i, x := range region {
			f.Mean[i] += x
		}
	}
	inv := 1.0 / float32(len(regions))
	for i := range f.Mean {
		f.Mean[i] *= inv
	}
	return f
}

// RowState is one active row's recurrent state: hidden/cell pairs for the
// attention stage and the language stage. Single-stage decoders leave the
// language pair nil. Owned by the decode call that produced it.
type RowState struct {
	AttnHidden []float32
	AttnCell   []float32
	LangHidden []float32
	LangCell   []float32
}

// StepResult is the output of one decoding timestep over a batch of rows.
// All slices are indexed by row, in the same order as the step inputs.
type StepResult struct {
	// Scores holds one vocabulary-sized score vector per row. The greedy
	// path receives raw logits; the beam path receives log-probabilities.
	Scores [][]float32
	// Alphas holds the attention weights over regions per row, nil when the
	// step primitive does not expose them.
	Alphas [][]float32
	// States holds the updated recurrent state per row.
	States []RowState
}

// Decoder is the step primitive contract: one decoding timestep over a batch
// of rows. The batch dimension is the number of active rows (beam width or
// training batch size), not a fixed size. Implementations must behave as pure
// functions of their inputs.
type Decoder interface {
	// VocabSize returns the scoring dimensionality.
	VocabSize() int
	// InitStates produces the initial recurrent state for each row. feats
	// holds one feature view per row.
	InitStates(feats []*Features) ([]RowState, error)
	// Step advances every row by one timestep. states, prevWords and feats
	// are parallel, indexed by row.
	Step(states []RowState, prevWords []int, feats []*Features) (*StepResult, error)
}

// Argmax returns the index of the largest score, first occurrence winning
// ties so greedy decoding stays deterministic.
func Argmax(scores []float32) int {
	best := 0
	for i, s := range scores {
		if s > scores[best] {
			best = i
		}
	}
	return best
}
