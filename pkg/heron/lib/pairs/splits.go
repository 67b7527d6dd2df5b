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

package pairs

import (
	"math/rand"
	"sort"
)

// Splits partitions image IDs for held-out pair evaluation: every image
// whose captions mention the pair goes to test, the remainder is divided
// between train and val.
type Splits struct {
	Train []string `json:"train_images_split"`
	Val   []string `json:"val_images_split"`
	Test  []string `json:"test_images_split"`
}

// SplitsFromOccurrences derives the dataset split from pair occurrence
// statistics. valFraction is the share of non-test images assigned to val.
// The shuffle uses the injected randomness source; IDs are sorted before
// shuffling so a fixed seed yields a fixed split.
func SplitsFromOccurrences(occ *Occurrences, valFraction float64, rng *rand.Rand) *Splits {
	test := occ.ImagesWithPair(1)
	inTest := make(map[string]bool, len(test))
	for _, id := range test {
		inTest[id] = true
	}

	var rest []string
	for id := range occ.Data {
		if !inTest[id] {
			rest = append(rest, id)
		}
	}
	sort.Strings(rest)
	rng.Shuffle(len(rest), func(i, j int) { rest[i], rest[j] = rest[j], rest[i] })

	valSize := int(valFraction * float64(len(rest)))
	return &Splits{
		Train: rest[valSize:],
		Val:   rest[:valSize],
		Test:  test,
	}
}
