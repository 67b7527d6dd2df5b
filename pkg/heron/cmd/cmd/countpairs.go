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
	"fmt"
	"math/rand"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/heronml/heron/pkg/heron/lib/pairs"
)

var (
	pairsCaptionsPath string
	pairsAdjectives   []string
	pairsVerbs        []string
	pairsNouns        []string
	pairsOutPath      string
	pairsSplitsPath   string
	pairsValFraction  float64
	pairsSeed         int64
)

var countPairsCmd = &cobra.Command{
	Use:   "count-pairs",
	Short: "Count concept pair occurrences in captions",
	Long: `Tag captions with part-of-speech labels and count, per image, how many
captions contain the given adjective-noun or verb-noun pair. Pass --adjectives
for adjective-noun pairs or --verbs for verb-noun pairs, with --nouns in both
cases. Optionally derive train/val/test splits that hold out the pair images.`,
	RunE: runCountPairs,
}

func init() {
	rootCmd.AddCommand(countPairsCmd)

	countPairsCmd.Flags().StringVar(&pairsCaptionsPath, "captions", "", "captions JSON file (image ID -> caption sentences)")
	countPairsCmd.Flags().StringSliceVar(&pairsAdjectives, "adjectives", nil, "adjectives of the pair (e.g. white,snowy)")
	countPairsCmd.Flags().StringSliceVar(&pairsVerbs, "verbs", nil, "verbs of the pair (e.g. eat,eats,eating)")
	countPairsCmd.Flags().StringSliceVar(&pairsNouns, "nouns", nil, "nouns of the pair (e.g. car,cars)")
	countPairsCmd.Flags().StringVar(&pairsOutPath, "out", "occurrences.json", "output occurrences path")
	countPairsCmd.Flags().StringVar(&pairsSplitsPath, "splits-out", "", "optional output path for train/val/test splits")
	countPairsCmd.Flags().Float64Var(&pairsValFraction, "val-fraction", 0.1, "fraction of non-pair images held out for validation")
	countPairsCmd.Flags().Int64Var(&pairsSeed, "seed", 42, "random seed for split shuffling")
	_ = countPairsCmd.MarkFlagRequired("captions")
	_ = countPairsCmd.MarkFlagRequired("nouns")
}

func runCountPairs(cmd *cobra.Command, args []string) error {
	logger := newLogger()
	defer func() {
		_ = logger.Sync()
	}()

	if (len(pairsAdjectives) == 0) == (len(pairsVerbs) == 0) {
		return fmt.Errorf("exactly one of --adjectives or --verbs is required")
	}

	captions, err := loadCaptions(pairsCaptionsPath)
	if err != nil {
		return err
	}

	var occurrences *pairs.Occurrences
	if len(pairsAdjectives) > 0 {
		occurrences, err = pairs.CountAdjectiveNounPairs(captions, pairsAdjectives, pairsNouns)
	} else {
		occurrences, err = pairs.CountVerbNounPairs(captions, pairsVerbs, pairsNouns)
	}
	if err != nil {
		return err
	}
	if err := occurrences.Save(pairsOutPath); err != nil {
		return err
	}
	logger.Info("Occurrences written",
		zap.String("path", pairsOutPath),
		zap.Int("images", len(captions)),
		zap.Int("pair_images", len(occurrences.ImagesWithPair(1))))

	if pairsSplitsPath != "" {
		rng := rand.New(rand.NewSource(pairsSeed))
		splits := pairs.SplitsFromOccurrences(occurrences, pairsValFraction, rng)
		if err := writeJSON(pairsSplitsPath, splits); err != nil {
			return err
		}
		logger.Info("Splits written",
			zap.String("path", pairsSplitsPath),
			zap.Int("train", len(splits.Train)),
			zap.Int("val", len(splits.Val)),
			zap.Int("test", len(splits.Test)))
	}
	return nil
}
