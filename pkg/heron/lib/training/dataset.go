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

package training

import (
	"fmt"
	"io"
	"math/rand"

	"github.com/gomlx/gomlx/pkg/core/tensors"
)

// Sample pairs one image's region features with one encoded caption.
type Sample struct {
	// Regions is the [numRegions][featureDim] feature matrix.
	Regions [][]float32
	// Caption is the encoded token sequence: start token, words, end token,
	// padding, at the dataset's fixed length.
	Caption []int
	// Length is the caption length counting start and end tokens but not
	// padding.
	Length int
}

// CaptionDataset feeds image/caption batches to the trainer. Every batch has
// the same shape so the training graph compiles once.
//
// Yield emits three inputs (regions [batch, numRegions, featureDim] float32,
// targets [batch, maxLen] int32, teacher-forcing mask [batch, maxLen-1] bool)
// and two labels (targets again, lengths [batch] int32). The mask carries one
// coin flip per timestep, replicated across rows, so a whole batch step is
// either teacher-forced or free-running.
type CaptionDataset struct {
	name      string
	samples   []Sample
	batchSize int
	maxLen    int
	tfRatio   float64
	rng       *rand.Rand
	shuffle   bool

	next int
}

// NewCaptionDataset builds a dataset over the given samples. All captions
// must share one encoded length and all feature matrices one shape. rng
// drives both shuffling and the teacher-forcing coin flips; pass shuffle
// false for validation-style deterministic iteration.
func NewCaptionDataset(name string, samples []Sample, batchSize int, tfRatio float64, rng *rand.Rand, shuffle bool) (*CaptionDataset, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("dataset %s: no samples", name)
	}
	if batchSize <= 0 || batchSize > len(samples) {
		return nil, fmt.Errorf("dataset %s: batch size %d invalid for %d samples", name, batchSize, len(samples))
	}
	maxLen := len(samples[0].Caption)
	for i, s := range samples {
		if len(s.Caption) != maxLen {
			return nil, fmt.Errorf("dataset %s: sample %d caption length %d, want %d", name, i, len(s.Caption), maxLen)
		}
		if s.Length < 2 || s.Length > maxLen {
			return nil, fmt.Errorf("dataset %s: sample %d length %d outside [2, %d]", name, i, s.Length, maxLen)
		}
	}
	if (tfRatio > 0 || shuffle) && rng == nil {
		return nil, fmt.Errorf("dataset %s: randomness source required", name)
	}
	d := &CaptionDataset{
		name:      name,
		samples:   samples,
		batchSize: batchSize,
		maxLen:    maxLen,
		tfRatio:   tfRatio,
		rng:       rng,
		shuffle:   shuffle,
	}
	d.Reset()
	return d, nil
}

func (d *CaptionDataset) Name() string { return d.name }

// Reset rewinds to the start of an epoch, reshuffling when enabled.
func (d *CaptionDataset) Reset() {
	d.next = 0
	if d.shuffle {
		d.rng.Shuffle(len(d.samples), func(i, j int) {
			d.samples[i], d.samples[j] = d.samples[j], d.samples[i]
		})
	}
}

// Yield produces the next batch, or io.EOF when fewer than a full batch of
// samples remain. Trailing samples are dropped to keep shapes constant.
func (d *CaptionDataset) Yield() (spec any, inputs []*tensors.Tensor, labels []*tensors.Tensor, err error) {
	if d.next+d.batchSize > len(d.samples) {
		return nil, nil, nil, io.EOF
	}
	batch := d.samples[d.next : d.next+d.batchSize]
	d.next += d.batchSize

	regions := make([][][]float32, len(batch))
	targets := make([][]int32, len(batch))
	lengths := make([]int32, len(batch))
	for i, s := range batch {
		regions[i] = s.Regions
		targets[i] = make([]int32, d.maxLen)
		for t, token := range s.Caption {
			targets[i][t] = int32(token)
		}
		lengths[i] = int32(s.Length)
	}

	mask := make([][]bool, len(batch))
	for i := range mask {
		mask[i] = make([]bool, d.maxLen-1)
	}
	for t := 0; t < d.maxLen-1; t++ {
		force := d.tfRatio > 0 && d.rng.Float64() < d.tfRatio
		for i := range mask {
			mask[i][t] = force
		}
	}

	inputs = []*tensors.Tensor{
		tensors.FromValue(regions),
		tensors.FromValue(targets),
		tensors.FromValue(mask),
	}
	labels = []*tensors.Tensor{tensors.FromValue(targets), tensors.FromValue(lengths)}
	return nil, inputs, labels, nil
}

// Batches reports how many full batches one epoch yields.
func (d *CaptionDataset) Batches() int { return len(d.samples) / d.batchSize }
