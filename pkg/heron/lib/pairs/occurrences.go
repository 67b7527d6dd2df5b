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
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// ImageOccurrences counts, for one image, how many of its captions mention
// the target concepts.
type ImageOccurrences struct {
	PairOccurrences      int `json:"pair_occurrences"`
	NounOccurrences      int `json:"noun_occurrences"`
	AdjectiveOccurrences int `json:"adjective_occurrences,omitempty"`
	VerbOccurrences      int `json:"verb_occurrences,omitempty"`
}

// Occurrences holds the pair occurrence statistics for one concept pair over
// a captioned image collection. Exactly one of Adjectives/Verbs is set.
type Occurrences struct {
	Nouns      []string                    `json:"nouns"`
	Adjectives []string                    `json:"adjectives,omitempty"`
	Verbs      []string                    `json:"verbs,omitempty"`
	Data       map[string]ImageOccurrences `json:"occurrence_data"`
}

// CountAdjectiveNounPairs tags every caption and counts, per image, the
// captions mentioning the target nouns, the target adjectives, and the
// combined pair.
func CountAdjectiveNounPairs(captions map[string][]string, adjectives, nouns []string) (*Occurrences, error) {
	tagger := NewTagger()
	occ := &Occurrences{
		Nouns:      nouns,
		Adjectives: adjectives,
		Data:       make(map[string]ImageOccurrences, len(captions)),
	}
	for imageID, imageCaptions := range captions {
		var counts ImageOccurrences
		for _, caption := range imageCaptions {
			tagged, err := tagger.Tag(caption)
			if err != nil {
				return nil, fmt.Errorf("image %s: %w", imageID, err)
			}
			if ContainsNoun(tagged, nouns) {
				counts.NounOccurrences++
			}
			if ContainsAdjective(tagged, adjectives) {
				counts.AdjectiveOccurrences++
			}
			if ContainsAdjectiveNounPair(tagged, adjectives, nouns) {
				counts.PairOccurrences++
			}
		}
		occ.Data[imageID] = counts
	}
	return occ, nil
}

// CountVerbNounPairs is the verb-noun analogue of CountAdjectiveNounPairs.
func CountVerbNounPairs(captions map[string][]string, verbs, nouns []string) (*Occurrences, error) {
	tagger := NewTagger()
	occ := &Occurrences{
		Nouns: nouns,
		Verbs: verbs,
		Data:  make(map[string]ImageOccurrences, len(captions)),
	}
	for imageID, imageCaptions := range captions {
		var counts ImageOccurrences
		for _, caption := range imageCaptions {
			tagged, err := tagger.Tag(caption)
			if err != nil {
				return nil, fmt.Errorf("image %s: %w", imageID, err)
			}
			if ContainsNoun(tagged, nouns) {
				counts.NounOccurrences++
			}
			if ContainsVerb(tagged, verbs) {
				counts.VerbOccurrences++
			}
			if ContainsVerbNounPair(tagged, verbs, nouns) {
				counts.PairOccurrences++
			}
		}
		occ.Data[imageID] = counts
	}
	return occ, nil
}

// ImagesWithPair returns the IDs of images whose captions mention the pair
// at least minCaptions times, sorted for reproducibility.
func (o *Occurrences) ImagesWithPair(minCaptions int) []string {
	var ids []string
	for id, counts := range o.Data {
		if counts.PairOccurrences >= minCaptions {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Save writes the occurrence statistics as JSON.
func (o *Occurrences) Save(path string) error {
	data, err := json.MarshalIndent(o, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding occurrences: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing occurrences: %w", err)
	}
	return nil
}

// LoadOccurrences reads occurrence statistics JSON.
func LoadOccurrences(path string) (*Occurrences, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading occurrences: %w", err)
	}
	occ := &Occurrences{}
	if err := json.Unmarshal(data, occ); err != nil {
		return nil, fmt.Errorf("parsing occurrences %s: %w", path, err)
	}
	return occ, nil
}
