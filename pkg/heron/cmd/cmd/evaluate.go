// Copyright 2025 Heron ML, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/heronml/heron/pkg/heron"
	"github.com/heronml/heron/pkg/heron/lib/decoding"
	"github.com/heronml/heron/pkg/heron/lib/features"
	"github.com/heronml/heron/pkg/heron/lib/metrics"
	"github.com/heronml/heron/pkg/heron/lib/pairs"
)

var (
	evalVariant      string
	evalStoreDir     string
	evalWordMapPath  string
	evalCaptionsPath string
	evalSplitsPath   string
	evalCheckpoints  string
	evalBeamWidth    int
	evalMaxLength    int
	evalConcurrency  int
	evalKeepTop      int
	evalOutPath      string
	evalAdjectives   []string
	evalVerbs        []string
	evalNouns        []string
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Caption images with beam search and score them",
	Long: `Beam-decode captions for every image in the feature store (or the test
split, when a splits file is given) and write them as JSON. With reference
captions, also report corpus BLEU-4 of the top beam.`,
	RunE: runEvaluate,
}

func init() {
	rootCmd.AddCommand(evaluateCmd)

	evaluateCmd.Flags().StringVar(&evalVariant, "variant", "topdown", "decoder variant (topdown, showattendtell)")
	evaluateCmd.Flags().StringVar(&evalStoreDir, "store", "", "feature store directory")
	evaluateCmd.Flags().StringVar(&evalWordMapPath, "word-map", "", "word map JSON path")
	evaluateCmd.Flags().StringVar(&evalCaptionsPath, "captions", "", "optional reference captions JSON for BLEU-4")
	evaluateCmd.Flags().StringVar(&evalSplitsPath, "splits", "", "optional splits JSON; restricts evaluation to the test split")
	evaluateCmd.Flags().StringVar(&evalCheckpoints, "checkpoints", "", "checkpoint directory with trained weights")
	evaluateCmd.Flags().IntVar(&evalBeamWidth, "beam-width", 5, "beam width")
	evaluateCmd.Flags().IntVar(&evalMaxLength, "max-length", 50, "decode length budget")
	evaluateCmd.Flags().IntVar(&evalConcurrency, "concurrency", 4, "concurrent beam searches")
	evaluateCmd.Flags().IntVar(&evalKeepTop, "keep-top", 5, "hypotheses kept per image")
	evaluateCmd.Flags().StringVar(&evalOutPath, "out", "generated_captions.json", "output captions path")
	evaluateCmd.Flags().StringSliceVar(&evalAdjectives, "adjectives", nil, "adjectives of the held-out pair, for pair recall")
	evaluateCmd.Flags().StringSliceVar(&evalVerbs, "verbs", nil, "verbs of the held-out pair, for pair recall")
	evaluateCmd.Flags().StringSliceVar(&evalNouns, "nouns", nil, "nouns of the held-out pair, for pair recall")
	_ = evaluateCmd.MarkFlagRequired("store")
	_ = evaluateCmd.MarkFlagRequired("word-map")
	_ = evaluateCmd.MarkFlagRequired("checkpoints")
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	logger := newLogger()
	defer func() {
		_ = logger.Sync()
	}()

	store, err := features.OpenStore(evalStoreDir)
	if err != nil {
		return err
	}
	env, err := newDecoderEnv(evalVariant, evalWordMapPath, evalCheckpoints, logger)
	if err != nil {
		return err
	}

	imageIDs := store.IDs()
	if evalSplitsPath != "" {
		if imageIDs, err = testSplitIDs(store); err != nil {
			return err
		}
	}

	evaluator := heron.NewEvaluator(env.model, heron.EvaluatorConfig{
		Beam: decoding.BeamConfig{
			BeamWidth:  evalBeamWidth,
			MaxLength:  evalMaxLength,
			StartToken: env.vocabulary.StartIndex(),
			EndToken:   env.vocabulary.EndIndex(),
		},
		MaxConcurrent: evalConcurrency,
		KeepTop:       evalKeepTop,
	}, logger)

	results, err := evaluator.CaptionAll(context.Background(), store, imageIDs)
	if err != nil {
		return err
	}

	generated := make(map[string][]string, len(results))
	for imageID, hypotheses := range results {
		sentences := make([]string, 0, len(hypotheses))
		for _, hypothesis := range hypotheses {
			words, err := env.vocabulary.Decode(hypothesis.Sequence)
			if err != nil {
				return fmt.Errorf("decoding caption for %s: %w", imageID, err)
			}
			sentences = append(sentences, strings.Join(words, " "))
		}
		generated[imageID] = sentences
	}
	if err := writeJSON(evalOutPath, generated); err != nil {
		return err
	}
	logger.Info("Generated captions written",
		zap.String("path", evalOutPath),
		zap.Int("images", len(generated)))

	if evalCaptionsPath != "" {
		bleu4, err := scoreBLEU(env, results)
		if err != nil {
			return err
		}
		logger.Info("Corpus BLEU-4 of top beam", zap.Float64("bleu4", bleu4))
	}

	if len(evalNouns) > 0 {
		recall, err := scorePairRecall(generated)
		if err != nil {
			return err
		}
		logger.Info("Pair recall over beam captions",
			zap.Float64("recall", recall),
			zap.Int("k", evalKeepTop))
	}
	return nil
}

// scorePairRecall reports the fraction of images whose top beams mention the
// held-out pair.
func scorePairRecall(generated map[string][]string) (float64, error) {
	if (len(evalAdjectives) == 0) == (len(evalVerbs) == 0) {
		return 0, fmt.Errorf("pair recall needs exactly one of --adjectives or --verbs alongside --nouns")
	}

	tagger := pairs.NewTagger()
	match := func(caption []string) (bool, error) {
		tagged, err := tagger.Tag(strings.Join(caption, " "))
		if err != nil {
			return false, err
		}
		if len(evalAdjectives) > 0 {
			return pairs.ContainsAdjectiveNounPair(tagged, evalAdjectives, evalNouns), nil
		}
		return pairs.ContainsVerbNounPair(tagged, evalVerbs, evalNouns), nil
	}

	captions := make(map[string][][]string, len(generated))
	for imageID, sentences := range generated {
		tokenized := make([][]string, 0, len(sentences))
		for _, sentence := range sentences {
			tokenized = append(tokenized, tokenize(sentence))
		}
		captions[imageID] = tokenized
	}
	return metrics.PairRecallAtK(captions, match, evalKeepTop)
}

// testSplitIDs restricts evaluation to test-split images present in the
// store.
func testSplitIDs(store *features.Store) ([]string, error) {
	data, err := os.ReadFile(evalSplitsPath)
	if err != nil {
		return nil, fmt.Errorf("reading splits file: %w", err)
	}
	var splits pairs.Splits
	if err := json.Unmarshal(data, &splits); err != nil {
		return nil, fmt.Errorf("parsing splits file %s: %w", evalSplitsPath, err)
	}
	var imageIDs []string
	for _, imageID := range splits.Test {
		if store.Has(imageID) {
			imageIDs = append(imageIDs, imageID)
		}
	}
	if len(imageIDs) == 0 {
		return nil, fmt.Errorf("test split contains no images present in the store")
	}
	return imageIDs, nil
}

// scoreBLEU scores each image's top beam against its reference captions.
func scoreBLEU(env *decoderEnv, results map[string][]decoding.Hypothesis) (float64, error) {
	captions, err := loadCaptions(evalCaptionsPath)
	if err != nil {
		return 0, err
	}

	var references [][][]int
	var hypotheses [][]int
	for imageID, imageHypotheses := range results {
		sentences, ok := captions[imageID]
		if !ok || len(imageHypotheses) == 0 {
			continue
		}
		imageReferences := make([][]int, 0, len(sentences))
		for _, sentence := range sentences {
			words := tokenize(sentence)
			reference := make([]int, 0, len(words))
			for _, word := range words {
				reference = append(reference, env.vocabulary.Index(word))
			}
			imageReferences = append(imageReferences, reference)
		}
		references = append(references, imageReferences)
		hypotheses = append(hypotheses, env.vocabulary.StripSpecial(imageHypotheses[0].Sequence))
	}
	if len(hypotheses) == 0 {
		return 0, fmt.Errorf("no evaluated image has reference captions")
	}
	return metrics.CorpusBLEU4(references, hypotheses)
}
