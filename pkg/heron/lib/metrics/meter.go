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

// AverageMeter tracks a running weighted average of a scalar, such as the
// per-batch loss across an epoch.
type AverageMeter struct {
	Val   float64
	Sum   float64
	Count int
	Avg   float64
}

// Update records a value observed over n samples.
func (m *AverageMeter) Update(val float64, n int) {
	m.Val = val
	m.Sum += val * float64(n)
	m.Count += n
	if m.Count > 0 {
		m.Avg = m.Sum / float64(m.Count)
	}
}

// Reset clears the meter.
func (m *AverageMeter) Reset() { *m = AverageMeter{} }

// TopKAccuracy returns the percentage of rows whose target index appears
// among the k highest-scoring entries.
func TopKAccuracy(scores [][]float32, targets []int, k int) float64 {
	if len(scores) == 0 || len(scores) != len(targets) {
		return 0
	}
	correct := 0
	for i, row := range scores {
		target := targets[i]
		if target < 0 || target >= len(row) {
			continue
		}
		// The target lands in the top k when fewer than k entries strictly
		// beat it.
		better := 0
		for j, s := range row {
			if s > row[target] || (s == row[target] && j < target) {
				better++
			}
		}
		if better < k {
			correct++
		}
	}
	return 100 * float64(correct) / float64(len(targets))
}
