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

// Package features handles precomputed image region features: parsing the
// bottom-up attention TSV export format and storing region tensors for
// random access by image ID.
package features

import (
	"bufio"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// Bottom-up attention exports carry a fixed number of region boxes, each
// described by a 2048-dimensional feature vector.
const (
	NumBoxes   = 36
	FeatureDim = 2048
)

// tsvFieldCount matches the export column layout:
// image_id, image_w, image_h, num_boxes, boxes, features.
const tsvFieldCount = 6

// Record is one image's worth of detector output.
type Record struct {
	ImageID  int
	Width    int
	Height   int
	NumBoxes int
	// Boxes holds one (x1, y1, x2, y2) rectangle per region.
	Boxes [][]float32
	// Features holds one FeatureDim-sized vector per region.
	Features [][]float32
}

// TSVReader streams records from a bottom-up attention TSV export. Feature
// and box payloads are base64-encoded little-endian float32 arrays.
type TSVReader struct {
	scanner *bufio.Scanner
	line    int
}

// NewTSVReader wraps r. Lines can run to tens of megabytes, so the scanner
// buffer is sized generously.
func NewTSVReader(r io.Reader) *TSVReader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 1024*1024), 64*1024*1024)
	return &TSVReader{scanner: scanner}
}

// Next returns the next record, or io.EOF when the input is exhausted.
func (r *TSVReader) Next() (*Record, error) {
	if !r.scanner.Scan() {
		if err := r.scanner.Err(); err != nil {
			return nil, fmt.Errorf("reading features TSV: %w", err)
		}
		return nil, io.EOF
	}
	r.line++

	fields := strings.Split(r.scanner.Text(), "\t")
	if len(fields) != tsvFieldCount {
		return nil, fmt.Errorf("features TSV line %d: %d fields, want %d", r.line, len(fields), tsvFieldCount)
	}

	record := &Record{}
	var err error
	if record.ImageID, err = strconv.Atoi(fields[0]); err != nil {
		return nil, fmt.Errorf("features TSV line %d: image id: %w", r.line, err)
	}
	if record.Width, err = strconv.Atoi(fields[1]); err != nil {
		return nil, fmt.Errorf("features TSV line %d: image width: %w", r.line, err)
	}
	if record.Height, err = strconv.Atoi(fields[2]); err != nil {
		return nil, fmt.Errorf("features TSV line %d: image height: %w", r.line, err)
	}
	if record.NumBoxes, err = strconv.Atoi(fields[3]); err != nil {
		return nil, fmt.Errorf("features TSV line %d: box count: %w", r.line, err)
	}

	if record.Boxes, err = decodeFloat32Matrix(fields[4], record.NumBoxes, 4); err != nil {
		return nil, fmt.Errorf("features TSV line %d: boxes: %w", r.line, err)
	}
	if record.Features, err = decodeFloat32Matrix(fields[5], record.NumBoxes, FeatureDim); err != nil {
		return nil, fmt.Errorf("features TSV line %d: features: %w", r.line, err)
	}
	return record, nil
}

// decodeFloat32Matrix decodes a base64 payload of rows*cols little-endian
// float32 values.
func decodeFloat32Matrix(payload string, rows, cols int) ([][]float32, error) {
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("base64: %w", err)
	}
	want := rows * cols * 4
	if len(raw) != want {
		return nil, fmt.Errorf("%d payload bytes, want %d (%dx%d float32)", len(raw), want, rows, cols)
	}

	matrix := make([][]float32, rows)
	offset := 0
	for i := range matrix {
		row := make([]float32, cols)
		for j := range row {
			row[j] = math.Float32frombits(binary.LittleEndian.Uint32(raw[offset:]))
			offset += 4
		}
		matrix[i] = row
	}
	return matrix, nil
}

// EncodeFloat32Matrix is the inverse of the TSV payload decoding, exported
// for fixture generation and export tooling.
func EncodeFloat32Matrix(matrix [][]float32) string {
	var raw []byte
	for _, row := range matrix {
		for _, x := range row {
			raw = binary.LittleEndian.AppendUint32(raw, math.Float32bits(x))
		}
	}
	return base64.StdEncoding.EncodeToString(raw)
}
