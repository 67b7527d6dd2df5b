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
	"github.com/gomlx/gomlx/pkg/core/dtypes"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/ml/train/losses"
)

// NewCaptionLoss builds the training loss: length-masked cross-entropy over
// the unrolled timesteps plus the doubly-stochastic attention
// regularization, which pushes each region's attention weights to sum to one
// across timesteps.
//
// Labels: targets [batch, maxLen] int32 (start token leading), caption
// lengths [batch] int32 (counting start and end tokens). Predictions: logits
// [batch, maxLen-1, vocab], alphas [batch, maxLen-1, regions].
func NewCaptionLoss(alphaC float64) losses.LossFn {
	return func(labels, predictions []*Node) *Node {
		targets, lengths := labels[0], labels[1]
		logits, alphas := predictions[0], predictions[1]
		g := logits.Graph()

		batch := logits.Shape().Dimensions[0]
		steps := logits.Shape().Dimensions[1]
		vocabSize := logits.Shape().Dimensions[2]

		// Cross-entropy of each predicted position against the next token.
		next := Slice(targets, AxisRange(), AxisRange(1, steps+1))
		logProbs := LogSoftmax(logits, -1)
		oneHot := OneHot(next, vocabSize, dtypes.Float32)
		crossEntropy := Neg(ReduceSum(Mul(oneHot, logProbs), -1))

		// A row predicts length-1 tokens; later steps are padding.
		stepIndex := Iota(g, shapes.Make(dtypes.Int32, batch, steps), 1)
		decodeLengths := Sub(lengths, OnesLike(lengths))
		mask := ConvertDType(LessThan(stepIndex, ExpandDims(decodeLengths, -1)), dtypes.Float32)

		masked := Mul(crossEntropy, mask)
		loss := Div(ReduceAllSum(masked), ReduceAllSum(mask))

		attentionSums := ReduceSum(alphas, 1)
		penalty := ReduceAllMean(Square(Sub(OnesLike(attentionSums), attentionSums)))
		return Add(loss, MulScalar(penalty, alphaC))
	}
}
