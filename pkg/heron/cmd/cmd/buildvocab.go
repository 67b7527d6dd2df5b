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
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/heronml/heron/pkg/heron/lib/vocab"
)

var (
	vocabCaptionsPath string
	vocabOutPath      string
	vocabMinFrequency int
)

var buildVocabCmd = &cobra.Command{
	Use:   "build-vocab",
	Short: "Build the word map from training captions",
	RunE:  runBuildVocab,
}

func init() {
	rootCmd.AddCommand(buildVocabCmd)

	buildVocabCmd.Flags().StringVar(&vocabCaptionsPath, "captions", "", "captions JSON file (image ID -> caption sentences)")
	buildVocabCmd.Flags().StringVar(&vocabOutPath, "out", "word_map.json", "output word map path")
	buildVocabCmd.Flags().IntVar(&vocabMinFrequency, "min-frequency", 5, "minimum word frequency to keep")
	_ = buildVocabCmd.MarkFlagRequired("captions")
}

func runBuildVocab(cmd *cobra.Command, args []string) error {
	logger := newLogger()
	defer func() {
		_ = logger.Sync()
	}()

	captions, err := loadCaptions(vocabCaptionsPath)
	if err != nil {
		return err
	}

	var tokenized [][]string
	for _, sentences := range captions {
		for _, sentence := range sentences {
			tokenized = append(tokenized, tokenize(sentence))
		}
	}

	vocabulary := vocab.FromTokens(tokenized, vocabMinFrequency)
	if err := vocabulary.Save(vocabOutPath); err != nil {
		return err
	}
	logger.Info("Word map written",
		zap.String("path", vocabOutPath),
		zap.Int("words", vocabulary.Size()),
		zap.Int("min_frequency", vocabMinFrequency))
	return nil
}
