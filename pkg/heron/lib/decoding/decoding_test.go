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

// Token layout shared by the decoding tests.
const (
	tokPad   = 0
	tokStart = 1
	tokEnd   = 2
	tokCat   = 3
	tokDog   = 4

	testVocabSize = 5
)

// scriptedDecoder is a deterministic step primitive for tests. score is
// called once per (call, row) with the call counter, the row index and the
// row's previous word.
type scriptedDecoder struct {
	vocabSize  int
	score      func(call, row, prevWord int) []float32
	withAlphas bool

	calls     int
	widths    []int
	prevWords [][]int
}

func (d *scriptedDecoder) VocabSize() int { return d.vocabSize }

func (d *scriptedDecoder) InitStates(feats []*Features) ([]RowState, error) {
	states := make([]RowState, len(feats))
	for i := range states {
		states[i] = RowState{AttnHidden: []float32{0}}
	}
	return states, nil
}

func (d *scriptedDecoder) Step(states []RowState, prevWords []int, feats []*Features) (*StepResult, error) {
	d.widths = append(d.widths, len(states))
	recorded := make([]int, len(prevWords))
	copy(recorded, prevWords)
	d.prevWords = append(d.prevWords, recorded)

	result := &StepResult{
		Scores: make([][]float32, len(states)),
		States: make([]RowState, len(states)),
	}
	if d.withAlphas {
		result.Alphas = make([][]float32, len(states))
	}
	for i := range states {
		result.Scores[i] = d.score(d.calls, i, prevWords[i])
		result.States[i] = RowState{AttnHidden: []float32{float32(d.calls + 1)}}
		if d.withAlphas {
			result.Alphas[i] = []float32{0.5, 0.5}
		}
	}
	d.calls++
	return result, nil
}

// scoresFavoring builds a score vector where best gets the highest score and
// every other token a distinct lower one.
func scoresFavoring(best int) []float32 {
	scores := make([]float32, testVocabSize)
	for i := range scores {
		scores[i] = -1 - 0.1*float32(i)
	}
	scores[best] = 10
	return scores
}

func testFeatures() *Features {
	return NewFeatures([][]float32{{1, 2}, {3, 4}})
}
