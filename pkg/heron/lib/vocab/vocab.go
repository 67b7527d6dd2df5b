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

// Package vocab maintains the word map: a fixed bijection between caption
// words and integer token indices, including the reserved control tokens.
package vocab

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// Reserved token strings. Every valid word map contains all four.
const (
	PadToken     = "<pad>"
	StartToken   = "<start>"
	EndToken     = "<end>"
	UnknownToken = "<unk>"
)

// Vocabulary is an immutable word<->index bijection. The padding token is
// always index 0 so that zero-filled sequence buffers read as padding.
type Vocabulary struct {
	wordToIndex map[string]int
	indexToWord []string
}

// FromTokens builds a vocabulary from tokenized captions, keeping words that
// occur at least minFrequency times. Words are indexed in sorted order for
// reproducibility; the reserved tokens are appended after the corpus words,
// except <pad> which takes index 0.
func FromTokens(captions [][]string, minFrequency int) *Vocabulary {
	frequencies := make(map[string]int)
	for _, caption := range captions {
		for _, word := range caption {
			frequencies[word]++
		}
	}

	kept := make([]string, 0, len(frequencies))
	for word, n := range frequencies {
		if n >= minFrequency {
			kept = append(kept, word)
		}
	}
	sort.Strings(kept)

	words := make([]string, 0, len(kept)+4)
	words = append(words, PadToken)
	words = append(words, kept...)
	words = append(words, StartToken, EndToken, UnknownToken)
	return fromWords(words)
}

func fromWords(words []string) *Vocabulary {
	v := &Vocabulary{
		wordToIndex: make(map[string]int, len(words)),
		indexToWord: words,
	}
	for i, word := range words {
		v.wordToIndex[word] = i
	}
	return v
}

// Load reads a word map JSON file (word -> index).
func Load(path string) (*Vocabulary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading word map: %w", err)
	}
	var wordMap map[string]int
	if err := json.Unmarshal(data, &wordMap); err != nil {
		return nil, fmt.Errorf("parsing word map %s: %w", path, err)
	}

	words := make([]string, len(wordMap))
	for word, index := range wordMap {
		if index < 0 || index >= len(words) {
			return nil, fmt.Errorf("word map %s: index %d for %q out of range [0, %d)", path, index, word, len(words))
		}
		if words[index] != "" {
			return nil, fmt.Errorf("word map %s: index %d assigned to both %q and %q", path, index, words[index], word)
		}
		words[index] = word
	}
	v := fromWords(words)
	if err := v.Validate(); err != nil {
		return nil, fmt.Errorf("word map %s: %w", path, err)
	}
	return v, nil
}

// Save writes the word map as JSON (word -> index).
func (v *Vocabulary) Save(path string) error {
	data, err := json.MarshalIndent(v.wordToIndex, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding word map: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing word map: %w", err)
	}
	return nil
}

// Validate checks that all reserved tokens are present and that <pad> sits at
// index 0. A vocabulary failing validation cannot drive decoding.
func (v *Vocabulary) Validate() error {
	for _, token := range []string{PadToken, StartToken, EndToken, UnknownToken} {
		if _, ok := v.wordToIndex[token]; !ok {
			return fmt.Errorf("missing reserved token %q", token)
		}
	}
	if v.wordToIndex[PadToken] != 0 {
		return fmt.Errorf("reserved token %q must have index 0, has %d", PadToken, v.wordToIndex[PadToken])
	}
	return nil
}

// Size returns the number of tokens, including the reserved ones.
func (v *Vocabulary) Size() int { return len(v.indexToWord) }

// Index maps a word to its token index, falling back to <unk>.
func (v *Vocabulary) Index(word string) int {
	if i, ok := v.wordToIndex[word]; ok {
		return i
	}
	return v.wordToIndex[UnknownToken]
}

// Word maps a token index back to its word.
func (v *Vocabulary) Word(index int) (string, error) {
	if index < 0 || index >= len(v.indexToWord) {
		return "", fmt.Errorf("token index %d out of range [0, %d)", index, len(v.indexToWord))
	}
	return v.indexToWord[index], nil
}

func (v *Vocabulary) PadIndex() int     { return v.wordToIndex[PadToken] }
func (v *Vocabulary) StartIndex() int   { return v.wordToIndex[StartToken] }
func (v *Vocabulary) EndIndex() int     { return v.wordToIndex[EndToken] }
func (v *Vocabulary) UnknownIndex() int { return v.wordToIndex[UnknownToken] }

// Encode maps a tokenized caption to indices and brackets it with
// <start>/<end>, padding to length. Words outside the map become <unk>.
func (v *Vocabulary) Encode(words []string, length int) []int {
	sequence := make([]int, 0, length)
	sequence = append(sequence, v.StartIndex())
	for _, word := range words {
		sequence = append(sequence, v.Index(word))
	}
	sequence = append(sequence, v.EndIndex())
	for len(sequence) < length {
		sequence = append(sequence, v.PadIndex())
	}
	if len(sequence) > length {
		sequence = sequence[:length]
	}
	return sequence
}

// StripSpecial removes <start>, <end> and <pad> from a token sequence.
func (v *Vocabulary) StripSpecial(sequence []int) []int {
	stripped := make([]int, 0, len(sequence))
	for _, index := range sequence {
		switch index {
		case v.PadIndex(), v.StartIndex(), v.EndIndex():
		default:
			stripped = append(stripped, index)
		}
	}
	return stripped
}

// Decode maps a token sequence to words, dropping special tokens.
func (v *Vocabulary) Decode(sequence []int) ([]string, error) {
	stripped := v.StripSpecial(sequence)
	words := make([]string, 0, len(stripped))
	for _, index := range stripped {
		word, err := v.Word(index)
		if err != nil {
			return nil, err
		}
		words = append(words, word)
	}
	return words, nil
}
