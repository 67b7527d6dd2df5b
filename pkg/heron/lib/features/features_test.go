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
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// tsvLine renders one export line with the given number of boxes.
func tsvLine(imageID, numBoxes int) string {
	boxes := make([][]float32, numBoxes)
	feats := make([][]float32, numBoxes)
	for i := range boxes {
		boxes[i] = []float32{0, 0, float32(i + 1), float32(i + 1)}
		feats[i] = make([]float32, FeatureDim)
		feats[i][0] = float32(imageID)
		feats[i][1] = float32(i)
	}
	return fmt.Sprintf("%d\t640\t480\t%d\t%s\t%s",
		imageID, numBoxes, EncodeFloat32Matrix(boxes), EncodeFloat32Matrix(feats))
}

func TestTSVReader(t *testing.T) {
	input := tsvLine(7, 3) + "\n" + tsvLine(8, 2) + "\n"
	reader := NewTSVReader(strings.NewReader(input))

	first, err := reader.Next()
	require.NoError(t, err)
	assert.Equal(t, 7, first.ImageID)
	assert.Equal(t, 640, first.Width)
	assert.Equal(t, 480, first.Height)
	assert.Equal(t, 3, first.NumBoxes)
	require.Len(t, first.Boxes, 3)
	require.Len(t, first.Features, 3)
	assert.Equal(t, float32(7), first.Features[0][0])
	assert.Equal(t, float32(2), first.Features[2][1])

	second, err := reader.Next()
	require.NoError(t, err)
	assert.Equal(t, 8, second.ImageID)

	_, err = reader.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestTSVReaderRejectsMalformedLines(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{"too few fields", "1\t2\t3"},
		{"bad image id", strings.Replace(tsvLine(1, 2), "1\t", "x\t", 1)},
		{"bad base64", "1\t640\t480\t2\t!!!\t!!!"},
		{"payload size mismatch", "1\t640\t480\t5\t" + EncodeFloat32Matrix([][]float32{{1, 2, 3, 4}}) + "\t" + EncodeFloat32Matrix([][]float32{{1}})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reader := NewTSVReader(strings.NewReader(tt.line + "\n"))
			_, err := reader.Next()
			assert.Error(t, err)
		})
	}
}

func TestStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := CreateStore(dir)
	require.NoError(t, err)

	regions := [][]float32{{1, 2}, {3, 4}, {5, 6}}
	require.NoError(t, store.Put("42", regions))
	require.NoError(t, store.Flush())

	reopened, err := OpenStore(dir)
	require.NoError(t, err)
	assert.True(t, reopened.Has("42"))
	assert.False(t, reopened.Has("43"))
	assert.Equal(t, []string{"42"}, reopened.IDs())

	feats, err := reopened.Load("42")
	require.NoError(t, err)
	assert.Equal(t, regions, feats.Regions)
	assert.Equal(t, []float32{3, 4}, feats.Mean)

	_, err = reopened.Load("missing")
	assert.Error(t, err)
}

func TestConvert(t *testing.T) {
	dir := t.TempDir()
	tsvPath := filepath.Join(dir, "features.tsv")
	content := tsvLine(1, 2) + "\n" + tsvLine(2, 2) + "\n"
	require.NoError(t, os.WriteFile(tsvPath, []byte(content), 0o644))

	storeDir := filepath.Join(dir, "store")
	count, err := Convert(tsvPath, storeDir, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	store, err := OpenStore(storeDir)
	require.NoError(t, err)
	assert.Equal(t, 2, store.Len())

	feats, err := store.Load("1")
	require.NoError(t, err)
	require.Len(t, feats.Regions, 2)
	assert.Equal(t, float32(1), feats.Regions[0][0])
}
