// Copyright the Quiche authors.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with
// the License. You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on
// an "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied. See the License for the
// specific language governing permissions and limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/quichelang/quiche/pkg/util/assert"
)

func TestSplitLines(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, splitLines("a\nb\n"))
	assert.Equal(t, []string{"a"}, splitLines("a"))
}

func TestBuildStages_SuccessfulFileReachesEmittedStage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ok.qc")
	if err := os.WriteFile(path, []byte("x = 1\n"), 0o644); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}

	stages, err := buildStages(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	titles := make([]string, len(stages))
	for i, s := range stages {
		titles[i] = s.title
	}

	assert.Equal(t, []string{"tokens", "raw-ast", "desugared-ast", "symbols", "emitted"}, titles)
	assert.True(t, len(stages[0].lines) > 0)
}

func TestBuildStages_ParseFailureStopsAtErrorStage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.qc")
	if err := os.WriteFile(path, []byte("x = (\n"), 0o644); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}

	stages, err := buildStages(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	last := stages[len(stages)-1]
	assert.Equal(t, "error", last.title)
}

func TestBuildStages_MissingFileReturnsError(t *testing.T) {
	_, err := buildStages(filepath.Join(t.TempDir(), "missing.qc"))

	assert.True(t, err != nil)
}
