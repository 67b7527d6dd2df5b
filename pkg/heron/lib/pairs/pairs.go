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

// Package pairs mines adjective-noun and verb-noun pair occurrences from
// captions via part-of-speech tagging, and derives dataset splits from the
// occurrence statistics.
package pairs

import (
	"fmt"
	"strings"

	"github.com/jdkato/prose/v2"
)

// TaggedWord is one caption token with its Penn Treebank POS tag.
type TaggedWord struct {
	Text string
	Tag  string
}

// Tagger tags captions with parts of speech.
type Tagger struct{}

func NewTagger() *Tagger { return &Tagger{} }

// Tag tokenizes and POS-tags a single caption. Token text is lowercased.
func (t *Tagger) Tag(caption string) ([]TaggedWord, error) {
	doc, err := prose.NewDocument(caption,
		prose.WithExtraction(false),
		prose.WithSegmentation(false))
	if err != nil {
		return nil, fmt.Errorf("tagging caption: %w", err)
	}
	tokens := doc.Tokens()
	tagged := make([]TaggedWord, 0, len(tokens))
	for _, token := range tokens {
		tagged = append(tagged, TaggedWord{Text: strings.ToLower(token.Text), Tag: token.Tag})
	}
	return tagged, nil
}

func isNoun(tag string) bool      { return strings.HasPrefix(tag, "NN") }
func isAdjective(tag string) bool { return strings.HasPrefix(tag, "JJ") }
func isVerb(tag string) bool      { return strings.HasPrefix(tag, "VB") }

// copulas link a subject noun to a predicate adjective ("the car is blue").
var copulas = map[string]bool{
	"is": true, "are": true, "was": true, "were": true,
	"be": true, "been": true, "being": true, "looks": true, "seems": true,
}

// normalizeNoun reduces common plural forms so "cars" matches "car".
func normalizeNoun(word string) string {
	switch {
	case strings.HasSuffix(word, "ies") && len(word) > 4:
		return word[:len(word)-3] + "y"
	case strings.HasSuffix(word, "ses") || strings.HasSuffix(word, "xes") || strings.HasSuffix(word, "hes"):
		return word[:len(word)-2]
	case strings.HasSuffix(word, "s") && !strings.HasSuffix(word, "ss") && len(word) > 2:
		return word[:len(word)-1]
	}
	return word
}

// normalizeVerb strips common inflections so "driving" and "drives" match
// "drive". Approximate; irregular verbs must be listed in their surface form.
func normalizeVerb(word string) string {
	switch {
	case strings.HasSuffix(word, "ing") && len(word) > 5:
		stem := word[:len(word)-3]
		if len(stem) > 2 && stem[len(stem)-1] == stem[len(stem)-2] {
			stem = stem[:len(stem)-1] // running -> run
		}
		return stem
	case strings.HasSuffix(word, "ies") && len(word) > 4:
		return word[:len(word)-3] + "y"
	case strings.HasSuffix(word, "es") && len(word) > 4:
		return word[:len(word)-2]
	case strings.HasSuffix(word, "ed") && len(word) > 4:
		return word[:len(word)-2]
	case strings.HasSuffix(word, "s") && !strings.HasSuffix(word, "ss") && len(word) > 3:
		return word[:len(word)-1]
	}
	return word
}

func toSet(words []string) map[string]bool {
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[strings.ToLower(w)] = true
	}
	return set
}

// matchesNoun reports whether the token is a target noun.
func matchesNoun(token TaggedWord, nouns map[string]bool) bool {
	if !isNoun(token.Tag) {
		return false
	}
	return nouns[token.Text] || nouns[normalizeNoun(token.Text)]
}

// ContainsAdjectiveNounPair reports whether a target adjective modifies a
// target noun in the tagged caption. Two patterns are recognized: an
// attributive adjective inside the noun phrase preceding the noun ("the blue
// old car"), and a predicate adjective linked by a copula ("the car is
// blue").
func ContainsAdjectiveNounPair(tagged []TaggedWord, adjectives, nouns []string) bool {
	adjSet, nounSet := toSet(adjectives), toSet(nouns)

	for i, token := range tagged {
		if !matchesNoun(token, nounSet) {
			continue
		}
		// Attributive: scan back through the noun phrase.
		for j := i - 1; j >= 0; j-- {
			t := tagged[j]
			if isAdjective(t.Tag) && adjSet[t.Text] {
				return true
			}
			if !isAdjective(t.Tag) && !isNoun(t.Tag) && t.Tag != "CC" && t.Tag != "," && t.Tag != "RB" {
				break
			}
		}
		// Predicate: noun, copula, then an adjective shortly after.
		for j := i + 1; j < len(tagged) && j <= i+2; j++ {
			if !copulas[tagged[j].Text] {
				continue
			}
			for k := j + 1; k < len(tagged) && k <= j+3; k++ {
				if isAdjective(tagged[k].Tag) && adjSet[tagged[k].Text] {
					return true
				}
			}
		}
	}
	return false
}

// verbNounWindow bounds how far apart a verb and its noun argument may sit.
const verbNounWindow = 5

// ContainsVerbNounPair reports whether a target verb occurs with a target
// noun as a nearby argument ("a man rides a horse"). Proximity stands in for
// an argument-structure parse.
func ContainsVerbNounPair(tagged []TaggedWord, verbs, nouns []string) bool {
	verbSet, nounSet := toSet(verbs), toSet(nouns)

	for i, token := range tagged {
		if !isVerb(token.Tag) {
			continue
		}
		if !verbSet[token.Text] && !verbSet[normalizeVerb(token.Text)] {
			continue
		}
		lo := i - verbNounWindow
		if lo < 0 {
			lo = 0
		}
		hi := i + verbNounWindow
		if hi >= len(tagged) {
			hi = len(tagged) - 1
		}
		for j := lo; j <= hi; j++ {
			if j != i && matchesNoun(tagged[j], nounSet) {
				return true
			}
		}
	}
	return false
}

// ContainsNoun reports whether the caption mentions any target noun.
func ContainsNoun(tagged []TaggedWord, nouns []string) bool {
	nounSet := toSet(nouns)
	for _, token := range tagged {
		if matchesNoun(token, nounSet) {
			return true
		}
	}
	return false
}

// ContainsAdjective reports whether the caption mentions any target
// adjective.
func ContainsAdjective(tagged []TaggedWord, adjectives []string) bool {
	adjSet := toSet(adjectives)
	for _, token := range tagged {
		if isAdjective(token.Tag) && adjSet[token.Text] {
			return true
		}
	}
	return false
}

// ContainsVerb reports whether the caption mentions any target verb.
func ContainsVerb(tagged []TaggedWord, verbs []string) bool {
	verbSet := toSet(verbs)
	for _, token := range tagged {
		if isVerb(token.Tag) && (verbSet[token.Text] || verbSet[normalizeVerb(token.Text)]) {
			return true
		}
	}
	return false
}
