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

	"github.com/heronml/heron/pkg/heron/lib/features"
)

var (
	convertTSVPath  string
	convertStoreDir string
)

var convertFeaturesCmd = &cobra.Command{
	Use:   "convert-features",
	Short: "Import region features from a bottom-up attention TSV dump",
	Long: `Stream a bottom-up attention TSV dump (base64-encoded float32 region
features) into an indexed on-disk feature store for training and evaluation.`,
	RunE: runConvertFeatures,
}

func init() {
	rootCmd.AddCommand(convertFeaturesCmd)

	convertFeaturesCmd.Flags().StringVar(&convertTSVPath, "tsv", "", "input TSV file path")
	convertFeaturesCmd.Flags().StringVar(&convertStoreDir, "store", "", "output feature store directory")
	_ = convertFeaturesCmd.MarkFlagRequired("tsv")
	_ = convertFeaturesCmd.MarkFlagRequired("store")
}

func runConvertFeatures(cmd *cobra.Command, args []string) error {
	logger := newLogger()
	defer func() {
		_ = logger.Sync()
	}()

	count, err := features.Convert(convertTSVPath, convertStoreDir, logger)
	if err != nil {
		return err
	}
	logger.Info("Feature conversion complete",
		zap.String("store", convertStoreDir),
		zap.Int("images", count))
	return nil
}
