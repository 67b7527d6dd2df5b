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

package features

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"
)

// Convert packs a bottom-up attention TSV export into a feature store.
// Returns the number of images converted.
func Convert(tsvPath, storeDir string, logger *zap.Logger) (int, error) {
	file, err := os.Open(tsvPath)
	if err != nil {
		return 0, fmt.Errorf("opening features TSV: %w", err)
	}
	defer file.Close()

	store, err := CreateStore(storeDir)
	if err != nil {
		return 0, err
	}

	logger.Info("converting bottom-up features",
		zap.String("tsv", tsvPath),
		zap.String("store", storeDir))

	bar := progressbar.Default(-1, "images")
	reader := NewTSVReader(file)
	count := 0
	for {
		record, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return count, err
		}
		imageID := strconv.Itoa(record.ImageID)
		if err := store.Put(imageID, record.Features); err != nil {
			return count, err
		}
		count++
		_ = bar.Add(1)
	}
	_ = bar.Finish()

	if err := store.Flush(); err != nil {
		return count, err
	}
	logger.Info("feature conversion complete", zap.Int("images", count))
	return count, nil
}
