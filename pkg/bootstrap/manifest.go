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

package bootstrap

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"sort"

	"github.com/segmentio/encoding/json"
)

// ManifestEntry records one emitted file's path (relative to its stage
// directory) and content hash.
type ManifestEntry struct {
	Path string `json:"path"`
	Hash string `json:"hash"`
}

// Manifest is the per-stage artifact record written alongside a stage's
// output directory (§4.6, §6's "stage manifest" glossary entry). It is
// itself excluded from byte-parity diffing, since its own hash/duration
// fields are path- and timing-dependent.
type Manifest struct {
	Stage      string          `json:"stage"`
	Files      []ManifestEntry `json:"files"`
	DurationMs int64           `json:"duration_ms"`
}

const manifestFilename = "manifest.json"

// buildManifest hashes every file written to dir and records duration.
func buildManifest(stage, dir string, files []string, durationMs int64) (*Manifest, error) {
	entries := make([]ManifestEntry, 0, len(files))

	for _, f := range files {
		data, err := os.ReadFile(filepath.Join(dir, f))
		if err != nil {
			return nil, err
		}

		sum := sha256.Sum256(data)

		entries = append(entries, ManifestEntry{Path: f, Hash: hex.EncodeToString(sum[:])})
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })

	return &Manifest{Stage: stage, Files: entries, DurationMs: durationMs}, nil
}

// writeManifest serializes m as manifest.json inside dir.
func writeManifest(dir string, m *Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(filepath.Join(dir, manifestFilename), data, 0o644)
}

// readManifest loads a previously-written manifest.json from dir.
func readManifest(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, manifestFilename))
	if err != nil {
		return nil, err
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}

	return &m, nil
}
