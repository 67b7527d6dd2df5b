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

// Package models implements the neural caption decoders as GoMLX graphs:
// the bottom-up-top-down two-stage decoder and the single-stage
// show-attend-tell decoder. Both expose the decoding step primitive and a
// teacher-forced training graph.
package models

import (
	"fmt"

	"github.com/gomlx/gomlx/backends"

	// Pure Go backend, always available.
	_ "github.com/gomlx/gomlx/backends/simplego"
)

// NewEngine creates the numeric backend. An empty or "auto" name tries the
// hardware-accelerated xla backend first and falls back to simplego.
func NewEngine(name string) (backends.Backend, error) {
	if name != "" && name != "auto" {
		engine, err := backends.NewWithConfig(name)
		if err != nil {
			return nil, fmt.Errorf("creating %q engine: %w", name, err)
		}
		return engine, nil
	}

	engine, err := backends.NewWithConfig("xla")
	if err == nil {
		return engine, nil
	}
	engine, err = backends.NewWithConfig("go")
	if err != nil {
		return nil, fmt.Errorf("creating simplego engine: %w", err)
	}
	return engine, nil
}
