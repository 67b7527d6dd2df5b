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

// Package metrics implements the evaluation metrics used during training and
// evaluation: corpus BLEU, top-k accuracy, running averages, ranking recall
// and pair recall over generated captions.
package metrics

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

const bleuMaxOrder = 4

// CorpusBLEU4 computes corpus-level BLEU-4 with uniform weights over token
// index sequences. references holds, per hypothesis, the set of reference
// sequences. Clipped n-gram counts are pooled over the corpus and the
// brevity penalty uses the closest reference length (ties broken towards the
// shorter reference). No smoothing: a missing n-gram order yields 0.
func CorpusBLEU4(references [][][]int, hypotheses [][]int) (float64, error) {
	if len(references) != len(hypotheses) {
		return 0, fmt.Errorf("references for %d hypotheses, got %d", len(hypotheses), len(references))
	}
	if len(hypotheses) == 0 {
		return 0, fmt.Errorf("no hypotheses to score")
	}

	numerators := make([]int, bleuMaxOrder)
	denominators := make([]int, bleuMaxOrder)
	hypLength, refLength := 0, 0

	for i, hyp := range hypotheses {
		refs := references[i]
		if len(refs) == 0 {
			return 0, fmt.Errorf("hypothesis %d has no references", i)
		}
		hypLength += len(hyp)
		refLength += closestRefLength(refs, len(hyp))

		for n := 1; n <= bleuMaxOrder; n++ {
			hypCounts := ngramCounts(hyp, n)
			maxRefCounts := make(map[string]int)
			for _, ref := range refs {
				for gram, count := range ngramCounts(ref, n) {
					if count > maxRefCounts[gram] {
						maxRefCounts[gram] = count
					}
				}
			}
			for gram, count := range hypCounts {
				clipped := count
				if limit := maxRefCounts[gram]; clipped > limit {
					clipped = limit
				}
				numerators[n-1] += clipped
				denominators[n-1] += count
			}
		}
	}

	logPrecisionSum := 0.0
	for n := 0; n < bleuMaxOrder; n++ {
		if numerators[n] == 0 || denominators[n] == 0 {
			return 0, nil
		}
		logPrecisionSum += math.Log(float64(numerators[n]) / float64(denominators[n]))
	}

	brevityPenalty := 1.0
	if hypLength <= refLength {
		if hypLength == 0 {
			return 0, nil
		}
		brevityPenalty = math.Exp(1 - float64(refLength)/float64(hypLength))
	}
	return brevityPenalty * math.Exp(logPrecisionSum/bleuMaxOrder), nil
}

// closestRefLength picks the reference length closest to the hypothesis
// length, preferring the shorter reference on ties.
func closestRefLength(refs [][]int, hypLen int) int {
	best := len(refs[0])
	for _, ref := range refs[1:] {
		d, bestD := abs(len(ref)-hypLen), abs(best-hypLen)
		if d < bestD || (d == bestD && len(ref) < best) {
			best = len(ref)
		}
	}
	return best
}

func ngramCounts(tokens []int, n int) map[string]int {
	counts := make(map[string]int)
	for i := 0; i+n <= len(tokens); i++ {
		var b strings.Builder
		for j := i; j < i+n; j++ {
			b.WriteString(strconv.Itoa(tokens[j]))
			b.WriteByte(' ')
		}
		counts[b.String()]++
	}
	return counts
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
