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

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// RankingResult summarizes caption-to-image retrieval quality.
type RankingResult struct {
	RecallAt1  float64
	RecallAt5  float64
	RecallAt10 float64
	MedianRank float64
	MeanRank   float64
}

// RankCaptionsToImages scores every caption embedding against every image
// embedding by cosine similarity and ranks each caption's true image.
// captionEmb row i belongs to image row i/captionsPerImage. Embeddings are
// dense row-per-item matrices with a shared column dimension.
func RankCaptionsToImages(imageEmb, captionEmb *mat.Dense, captionsPerImage int) (*RankingResult, error) {
	numImages, dim := imageEmb.Dims()
	numCaptions, capDim := captionEmb.Dims()
	if dim != capDim {
		return nil, fmt.Errorf("embedding dimensions differ: images %d, captions %d", dim, capDim)
	}
	if captionsPerImage <= 0 || numCaptions != numImages*captionsPerImage {
		return nil, fmt.Errorf("%d captions for %d images with %d captions per image", numCaptions, numImages, captionsPerImage)
	}

	images := normalizeRows(imageEmb)
	captions := normalizeRows(captionEmb)

	var scores mat.Dense
	scores.Mul(captions, images.T())

	ranks := make([]float64, numCaptions)
	for i := 0; i < numCaptions; i++ {
		trueImage := i / captionsPerImage
		trueScore := scores.At(i, trueImage)
		rank := 1
		for j := 0; j < numImages; j++ {
			if j != trueImage && scores.At(i, j) > trueScore {
				rank++
			}
		}
		ranks[i] = float64(rank)
	}

	result := &RankingResult{MeanRank: stat.Mean(ranks, nil)}
	sorted := append([]float64(nil), ranks...)
	sort.Float64s(sorted)
	result.MedianRank = stat.Quantile(0.5, stat.Empirical, sorted, nil)
	for _, rank := range ranks {
		if rank <= 1 {
			result.RecallAt1++
		}
		if rank <= 5 {
			result.RecallAt5++
		}
		if rank <= 10 {
			result.RecallAt10++
		}
	}
	total := float64(numCaptions)
	result.RecallAt1 /= total
	result.RecallAt5 /= total
	result.RecallAt10 /= total
	return result, nil
}

func normalizeRows(m *mat.Dense) *mat.Dense {
	rows, cols := m.Dims()
	out := mat.NewDense(rows, cols, nil)
	for i := 0; i < rows; i++ {
		row := mat.Row(nil, i, m)
		norm := mat.Norm(mat.NewVecDense(cols, row), 2)
		if norm == 0 {
			norm = 1
		}
		for j, x := range row {
			out.Set(i, j, x/norm)
		}
	}
	return out
}
