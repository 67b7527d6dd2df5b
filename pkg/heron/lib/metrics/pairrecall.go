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

import "fmt"

// PairMatcher reports whether a caption (as words) mentions the target
// concept pair. The pairs package supplies implementations; injecting the
// matcher keeps this metric independent of the tagging machinery.
type PairMatcher func(caption []string) (bool, error)

// PairRecallAtK computes, over images of a held-out pair, the fraction whose
// top-k generated captions mention the pair at least once. generated maps
// image IDs to their ranked caption lists.
func PairRecallAtK(generated map[string][][]string, match PairMatcher, k int) (float64, error) {
	if len(generated) == 0 {
		return 0, fmt.Errorf("no generated captions to score")
	}
	if k <= 0 {
		return 0, fmt.Errorf("recall cutoff must be positive, got %d", k)
	}

	matched := 0
	for imageID, captions := range generated {
		limit := k
		if limit > len(captions) {
			limit = len(captions)
		}
		for _, caption := range captions[:limit] {
			ok, err := match(caption)
			if err != nil {
				return 0, fmt.Errorf("image %s: %w", imageID, err)
			}
			if ok {
				matched++
				break
			}
		}
	}
	return float64(matched) / float64(len(generated)), nil
}
