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

// Package training orchestrates the caption decoder training loop: epoch
// iteration, validation BLEU tracking, learning-rate decay, early stopping
// and checkpointing.
package training

// Session carries training progress across epochs. It replaces ambient
// globals: every epoch receives and updates it explicitly.
type Session struct {
	// Epoch is the next epoch index to run.
	Epoch int
	// BestBleu4 is the best validation BLEU-4 observed so far.
	BestBleu4 float64
	// EpochsSinceImprovement counts epochs since BestBleu4 last improved.
	EpochsSinceImprovement int
}

// RecordValidation folds one epoch's validation score into the session and
// reports whether it improved on the best so far.
func (s *Session) RecordValidation(bleu4 float64) bool {
	s.Epoch++
	if bleu4 > s.BestBleu4 {
		s.BestBleu4 = bleu4
		s.EpochsSinceImprovement = 0
		return true
	}
	s.EpochsSinceImprovement++
	return false
}
