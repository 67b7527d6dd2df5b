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
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/layers"
)

// lstmCell advances one LSTM cell: input [rows, inputDim], hPrev and cPrev
// [rows, dim]. All four gates are computed in a single fused projection.
func lstmCell(ctx *context.Context, input, hPrev, cPrev *Node, dim int) (h, c *Node) {
	combined := Concatenate([]*Node{input, hPrev}, -1)
	gates := layers.Dense(ctx.In("gates"), combined, true, 4*dim)

	inputGate := Sigmoid(Slice(gates, AxisRange(), AxisRange(0, dim)))
	forgetGate := Sigmoid(Slice(gates, AxisRange(), AxisRange(dim, 2*dim)))
	outputGate := Sigmoid(Slice(gates, AxisRange(), AxisRange(2*dim, 3*dim)))
	candidate := Tanh(Slice(gates, AxisRange(), AxisRange(3*dim, 4*dim)))

	c = Add(Mul(forgetGate, cPrev), Mul(inputGate, candidate))
	h = Mul(outputGate, Tanh(c))
	return
}

// softAttention scores every region against the hidden state, normalizes
// over the region axis and returns the attention-weighted feature sum.
// regions is [rows, numRegions, featureDim], hidden [rows, hiddenDim];
// attended is [rows, featureDim], alphas [rows, numRegions].
func softAttention(ctx *context.Context, regions, hidden *Node, attentionDim int) (attended, alphas *Node) {
	projRegions := layers.Dense(ctx.In("regions"), regions, false, attentionDim)
	projHidden := layers.Dense(ctx.In("hidden"), hidden, false, attentionDim)

	joint := Tanh(Add(projRegions, ExpandDims(projHidden, 1)))
	energies := Squeeze(layers.Dense(ctx.In("score"), joint, false, 1), -1)
	alphas = Softmax(energies, -1)

	attended = ReduceSum(Mul(regions, ExpandDims(alphas, -1)), 1)
	return
}
