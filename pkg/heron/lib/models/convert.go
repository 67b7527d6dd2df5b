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

package models

import (
	"fmt"

	"github.com/gomlx/gomlx/pkg/core/tensors"

	"github.com/heronml/heron/pkg/heron/lib/decoding"
)

// Helpers moving batches between the decoding package's row-major Go slices
// and the tensors fed to the compiled step graphs.

func regionsBatch(feats []*decoding.Features) [][][]float32 {
	batch := make([][][]float32, len(feats))
	for i, f := range feats {
		batch[i] = f.Regions
	}
	return batch
}

func meansBatch(feats []*decoding.Features) [][]float32 {
	batch := make([][]float32, len(feats))
	for i, f := range feats {
		batch[i] = f.Mean
	}
	return batch
}

func wordsBatch(words []int) []int32 {
	batch := make([]int32, len(words))
	for i, w := range words {
		batch[i] = int32(w)
	}
	return batch
}

func stateBatch(states []decoding.RowState, pick func(decoding.RowState) []float32) [][]float32 {
	batch := make([][]float32, len(states))
	for i, s := range states {
		batch[i] = pick(s)
	}
	return batch
}

func tensorMatrix(t *tensors.Tensor) ([][]float32, error) {
	matrix, ok := t.Value().([][]float32)
	if !ok {
		return nil, fmt.Errorf("tensor shape %s is not a float32 matrix", t.Shape())
	}
	return matrix, nil
}
