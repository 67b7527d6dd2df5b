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

import "fmt"

// Config holds the decoder dimensions shared by both architectures.
type Config struct {
	// VocabSize is the scoring dimensionality, including reserved tokens.
	VocabSize int
	// EmbedDim is the word embedding size.
	EmbedDim int
	// AttentionDim is the joint attention projection size.
	AttentionDim int
	// DecoderDim is the recurrent hidden/cell size.
	DecoderDim int
	// FeatureDim is the per-region image feature size.
	FeatureDim int
	// NumRegions is the number of region features per image.
	NumRegions int
}

// DefaultConfig mirrors the standard bottom-up-top-down dimensions.
func DefaultConfig(vocabSize int) Config {
	return Config{
		VocabSize:    vocabSize,
		EmbedDim:     1000,
		AttentionDim: 512,
		DecoderDim:   1000,
		FeatureDim:   2048,
		NumRegions:   36,
	}
}

func (c Config) validate() error {
	if c.VocabSize <= 0 {
		return fmt.Errorf("vocabulary size must be positive, got %d", c.VocabSize)
	}
	for _, d := range []struct {
		name string
		dim  int
	}{
		{"embedding dimension", c.EmbedDim},
		{"attention dimension", c.AttentionDim},
		{"decoder dimension", c.DecoderDim},
		{"feature dimension", c.FeatureDim},
		{"region count", c.NumRegions},
	} {
		if d.dim <= 0 {
			return fmt.Errorf("%s must be positive, got %d", d.name, d.dim)
		}
	}
	return nil
}
