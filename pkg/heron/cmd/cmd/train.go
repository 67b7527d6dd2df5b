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
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/heronml/heron/pkg/heron/lib/features"
	"github.com/heronml/heron/pkg/heron/lib/pairs"
	"github.com/heronml/heron/pkg/heron/lib/training"
	"github.com/heronml/heron/pkg/heron/lib/vocab"
)

var (
	trainVariant       string
	trainStoreDir      string
	trainCaptionsPath  string
	trainWordMapPath   string
	trainSplitsPath    string
	trainCheckpointDir string
	trainEpochs        int
	trainBatchSize     int
	trainLearningRate  float64
	trainTFRatio       float64
	trainMaxLength     int
	trainSeed          int64
)

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Train a caption decoder",
	Long: `Train a caption decoder on region features with teacher forcing,
validating each epoch with greedy decoding and corpus BLEU-4. The learning
rate decays when validation stalls and training stops early when it stalls
for too long.`,
	RunE: runTrain,
}

func init() {
	rootCmd.AddCommand(trainCmd)

	trainCmd.Flags().StringVar(&trainVariant, "variant", "topdown", "decoder variant (topdown, showattendtell)")
	trainCmd.Flags().StringVar(&trainStoreDir, "store", "", "feature store directory")
	trainCmd.Flags().StringVar(&trainCaptionsPath, "captions", "", "captions JSON file (image ID -> caption sentences)")
	trainCmd.Flags().StringVar(&trainWordMapPath, "word-map", "", "word map JSON path")
	trainCmd.Flags().StringVar(&trainSplitsPath, "splits", "", "optional splits JSON path; without it every image trains")
	trainCmd.Flags().StringVar(&trainCheckpointDir, "checkpoints", "", "checkpoint directory (default: <checkpoints_dir>/<variant>)")
	trainCmd.Flags().IntVar(&trainEpochs, "epochs", 120, "epoch budget")
	trainCmd.Flags().IntVar(&trainBatchSize, "batch-size", 64, "training batch size")
	trainCmd.Flags().Float64Var(&trainLearningRate, "lr", 1e-4, "initial learning rate")
	trainCmd.Flags().Float64Var(&trainTFRatio, "teacher-forcing", 1.0, "per-step teacher forcing probability")
	trainCmd.Flags().IntVar(&trainMaxLength, "max-length", 50, "encoded caption length, start and end tokens included")
	trainCmd.Flags().Int64Var(&trainSeed, "seed", 42, "random seed")
	_ = trainCmd.MarkFlagRequired("store")
	_ = trainCmd.MarkFlagRequired("captions")
	_ = trainCmd.MarkFlagRequired("word-map")
}

func runTrain(cmd *cobra.Command, args []string) error {
	logger := newLogger()
	defer func() {
		_ = logger.Sync()
	}()

	captions, err := loadCaptions(trainCaptionsPath)
	if err != nil {
		return err
	}
	store, err := features.OpenStore(trainStoreDir)
	if err != nil {
		return err
	}
	env, err := newDecoderEnv(trainVariant, trainWordMapPath, "", logger)
	if err != nil {
		return err
	}

	trainIDs, valIDs, err := resolveSplit(store, captions)
	if err != nil {
		return err
	}
	logger.Info("Resolved training split",
		zap.String("variant", trainVariant),
		zap.Int("train_images", len(trainIDs)),
		zap.Int("val_images", len(valIDs)))

	samples, err := buildTrainSamples(store, captions, env.vocabulary, trainIDs)
	if err != nil {
		return err
	}
	valData, err := buildValSamples(store, captions, env.vocabulary, valIDs)
	if err != nil {
		return err
	}

	rng := rand.New(rand.NewSource(trainSeed))
	dataset, err := training.NewCaptionDataset("train", samples, trainBatchSize, trainTFRatio, rng, true)
	if err != nil {
		return err
	}

	checkpointDir := trainCheckpointDir
	if checkpointDir == "" {
		checkpointDir = filepath.Join(viper.GetString("checkpoints_dir"), trainVariant)
	}
	if err := os.MkdirAll(checkpointDir, 0o755); err != nil {
		return fmt.Errorf("creating checkpoint dir: %w", err)
	}

	cfg := training.DefaultTrainConfig()
	cfg.Epochs = trainEpochs
	cfg.LearningRate = trainLearningRate
	cfg.MaxLength = trainMaxLength
	cfg.StartToken = env.vocabulary.StartIndex()
	cfg.EndToken = env.vocabulary.EndIndex()
	cfg.PadToken = env.vocabulary.PadIndex()
	cfg.CheckpointDir = checkpointDir

	trainer, err := training.New(env.engine, env.ctx, env.model, cfg, &training.Session{}, logger)
	if err != nil {
		return err
	}
	return trainer.Run(dataset, valData)
}

// resolveSplit maps the optional splits file onto the images present in both
// the store and the captions file. Without a splits file every such image
// trains and there is no validation set.
func resolveSplit(store *features.Store, captions map[string][]string) (trainIDs, valIDs []string, err error) {
	available := func(imageID string) bool {
		_, hasCaptions := captions[imageID]
		return hasCaptions && store.Has(imageID)
	}

	if trainSplitsPath == "" {
		for _, imageID := range store.IDs() {
			if available(imageID) {
				trainIDs = append(trainIDs, imageID)
			}
		}
		if len(trainIDs) == 0 {
			return nil, nil, fmt.Errorf("no images with both features and captions")
		}
		return trainIDs, nil, nil
	}

	data, err := os.ReadFile(trainSplitsPath)
	if err != nil {
		return nil, nil, fmt.Errorf("reading splits file: %w", err)
	}
	var splits pairs.Splits
	if err := json.Unmarshal(data, &splits); err != nil {
		return nil, nil, fmt.Errorf("parsing splits file %s: %w", trainSplitsPath, err)
	}
	for _, imageID := range splits.Train {
		if available(imageID) {
			trainIDs = append(trainIDs, imageID)
		}
	}
	for _, imageID := range splits.Val {
		if available(imageID) {
			valIDs = append(valIDs, imageID)
		}
	}
	if len(trainIDs) == 0 {
		return nil, nil, fmt.Errorf("train split contains no images with both features and captions")
	}
	return trainIDs, valIDs, nil
}

func buildTrainSamples(store *features.Store, captions map[string][]string, vocabulary *vocab.Vocabulary, imageIDs []string) ([]training.Sample, error) {
	var samples []training.Sample
	for _, imageID := range imageIDs {
		feats, err := store.Load(imageID)
		if err != nil {
			return nil, err
		}
		for _, sentence := range captions[imageID] {
			words := tokenize(sentence)
			length := len(words) + 2
			if length > trainMaxLength {
				length = trainMaxLength
			}
			samples = append(samples, training.Sample{
				Regions: feats.Regions,
				Caption: vocabulary.Encode(words, trainMaxLength),
				Length:  length,
			})
		}
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("no training samples")
	}
	return samples, nil
}

func buildValSamples(store *features.Store, captions map[string][]string, vocabulary *vocab.Vocabulary, imageIDs []string) ([]training.ValSample, error) {
	var samples []training.ValSample
	for _, imageID := range imageIDs {
		feats, err := store.Load(imageID)
		if err != nil {
			return nil, err
		}
		references := make([][]int, 0, len(captions[imageID]))
		for _, sentence := range captions[imageID] {
			words := tokenize(sentence)
			reference := make([]int, 0, len(words))
			for _, word := range words {
				reference = append(reference, vocabulary.Index(word))
			}
			references = append(references, reference)
		}
		samples = append(samples, training.ValSample{
			Features:   feats,
			References: references,
		})
	}
	return samples, nil
}
