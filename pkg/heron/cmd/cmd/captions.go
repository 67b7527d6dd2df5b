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
	"os"
	"strings"
)

// loadCaptions reads a JSON file mapping image IDs to their caption
// sentences.
func loadCaptions(path string) (map[string][]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading captions file: %w", err)
	}
	captions := make(map[string][]string)
	if err := json.Unmarshal(data, &captions); err != nil {
		return nil, fmt.Errorf("parsing captions file %s: %w", path, err)
	}
	if len(captions) == 0 {
		return nil, fmt.Errorf("captions file %s is empty", path)
	}
	return captions, nil
}

// tokenize lowercases a caption sentence and splits it on whitespace.
func tokenize(caption string) []string {
	return strings.Fields(strings.ToLower(caption))
}

// writeJSON marshals v with indentation and writes it to path.
func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
