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

package vocab

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromTokens(t *testing.T) {
	captions := [][]string{
		{"a", "cat", "sits"},
		{"a", "dog", "sits"},
		{"a", "cat", "runs"},
	}

	v := FromTokens(captions, 2)
	require.NoError(t, v.Validate())

	// "a" (3x), "cat" (2x), "sits" (2x) survive the cutoff; "dog" and
	// "runs" do not.
	assert.Equal(t, 7, v.Size())
	assert.Equal(t, 0, v.PadIndex())
	assert.NotEqual(t, v.UnknownIndex(), v.Index("a"))
	assert.Equal(t, v.UnknownIndex(), v.Index("dog"))
	assert.Equal(t, v.UnknownIndex(), v.Index("zebra"))
}

func TestRoundTrip(t *testing.T) {
	v := FromTokens([][]string{{"cat", "dog"}}, 1)
	path := filepath.Join(t.TempDir(), "word_map.json")
	require.NoError(t, v.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, v.Size(), loaded.Size())
	for _, word := range []string{"cat", "dog", StartToken, EndToken, PadToken, UnknownToken} {
		assert.Equal(t, v.Index(word), loaded.Index(word), word)
	}
}

func TestLoadRejectsMalformedMaps(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		content string
	}{
		{"missing end token", `{"<pad>": 0, "<start>": 1, "<unk>": 2, "cat": 3}`},
		{"pad not at zero", `{"cat": 0, "<pad>": 1, "<start>": 2, "<end>": 3, "<unk>": 4}`},
		{"duplicate index", `{"<pad>": 0, "<start>": 1, "<end>": 1, "<unk>": 2}`},
		{"index out of range", `{"<pad>": 0, "<start>": 1, "<end>": 2, "<unk>": 9}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, "bad.json")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o644))
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestEncodeDecode(t *testing.T) {
	v := FromTokens([][]string{{"cat", "dog", "sits"}}, 1)

	sequence := v.Encode([]string{"cat", "sits"}, 6)
	require.Len(t, sequence, 6)
	assert.Equal(t, v.StartIndex(), sequence[0])
	assert.Equal(t, v.EndIndex(), sequence[3])
	assert.Equal(t, v.PadIndex(), sequence[4])
	assert.Equal(t, v.PadIndex(), sequence[5])

	words, err := v.Decode(sequence)
	require.NoError(t, err)
	assert.Equal(t, []string{"cat", "sits"}, words)
}

func TestStripSpecial(t *testing.T) {
	v := FromTokens([][]string{{"cat"}}, 1)
	sequence := []int{v.StartIndex(), v.Index("cat"), v.EndIndex(), v.PadIndex()}
	assert.Equal(t, []int{v.Index("cat")}, v.StripSpecial(sequence))
}
