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
	"strings"

	"github.com/spf13/cobra"

	"github.com/heronml/heron/pkg/heron/lib/decoding"
	"github.com/heronml/heron/pkg/heron/lib/features"
)

var (
	captionVariant     string
	captionStoreDir    string
	captionWordMapPath string
	captionCheckpoints string
	captionBeamWidth   int
	captionMaxLength   int
)

var captionCmd = &cobra.Command{
	Use:   "caption <image-id>",
	Short: "Caption a single image with beam search",
	Args:  cobra.ExactArgs(1),
	RunE:  runCaption,
}

func init() {
	rootCmd.AddCommand(captionCmd)

	captionCmd.Flags().StringVar(&captionVariant, "variant", "topdown", "decoder variant (topdown, showattendtell)")
	captionCmd.Flags().StringVar(&captionStoreDir, "store", "", "feature store directory")
	captionCmd.Flags().StringVar(&captionWordMapPath, "word-map", "", "word map JSON path")
	captionCmd.Flags().StringVar(&captionCheckpoints, "checkpoints", "", "checkpoint directory with trained weights")
	captionCmd.Flags().IntVar(&captionBeamWidth, "beam-width", 5, "beam width")
	captionCmd.Flags().IntVar(&captionMaxLength, "max-length", 50, "decode length budget")
	_ = captionCmd.MarkFlagRequired("store")
	_ = captionCmd.MarkFlagRequired("word-map")
	_ = captionCmd.MarkFlagRequired("checkpoints")
}

func runCaption(cmd *cobra.Command, args []string) error {
	logger := newLogger()
	defer func() {
		_ = logger.Sync()
	}()
	imageID := args[0]

	store, err := features.OpenStore(captionStoreDir)
	if err != nil {
		return err
	}
	env, err := newDecoderEnv(captionVariant, captionWordMapPath, captionCheckpoints, logger)
	if err != nil {
		return err
	}

	feats, err := store.Load(imageID)
	if err != nil {
		return err
	}
	hypotheses, err := decoding.BeamSearch(env.model.Beam(), feats, decoding.BeamConfig{
		BeamWidth:  captionBeamWidth,
		MaxLength:  captionMaxLength,
		StartToken: env.vocabulary.StartIndex(),
		EndToken:   env.vocabulary.EndIndex(),
	})
	if err != nil {
		return err
	}

	for _, hypothesis := range hypotheses {
		words, err := env.vocabulary.Decode(hypothesis.Sequence)
		if err != nil {
			return err
		}
		fmt.Printf("%9.3f  %s\n", hypothesis.Score, strings.Join(words, " "))
	}
	return nil
}
