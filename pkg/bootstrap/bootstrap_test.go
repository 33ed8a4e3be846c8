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
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/quichelang/quiche/pkg/util/assert"
)

// fakeTranspiler renders deterministic, file-dependent output so tests
// can assert on stage content without invoking the host pipeline or an
// external binary.
type fakeTranspiler struct {
	suffix string
}

func (f fakeTranspiler) Transpile(filename string, src []byte) (string, error) {
	return "// " + filepath.Base(filename) + f.suffix + "\n" + string(src), nil
}

func fixedClock(ticks ...int64) func() int64 {
	i := -1

	return func() int64 {
		i++
		if i >= len(ticks) {
			return ticks[len(ticks)-1]
		}

		return ticks[i]
	}
}

func writeSources(t *testing.T, dir string, files map[string]string) {
	t.Helper()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
}

func TestRunStage_EmitsManifestAndModuleDecls(t *testing.T) {
	src := t.TempDir()
	out := filepath.Join(t.TempDir(), "out")

	writeSources(t, src, map[string]string{
		"main.qc": "def main() -> int:\n    return 0\n",
		"util.qc": "def helper() -> int:\n    return 1\n",
	})

	manifest, berr := RunStage("stage0", fakeTranspiler{}, src, out, fixedClock(0, 5))
	assert.True(t, berr == nil)
	assert.Equal(t, "stage0", manifest.Stage)
	assert.Equal(t, 2, len(manifest.Files))

	mainGen, err := os.ReadFile(filepath.Join(out, "main_gen.rs"))
	assert.True(t, err == nil)
	assert.True(t, strings.HasPrefix(string(mainGen), "pub mod util;\n"))

	_, err = os.ReadFile(filepath.Join(out, "util.rs"))
	assert.True(t, err == nil)

	_, err = os.ReadFile(filepath.Join(out, manifestFilename))
	assert.True(t, err == nil)
}

func TestRunStage_MissingSourceDirFails(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out")

	_, berr := RunStage("stage0", fakeTranspiler{}, filepath.Join(t.TempDir(), "missing"), out, fixedClock(0))
	assert.True(t, berr != nil)
}

func TestRunStage_EmptySourceDirFails(t *testing.T) {
	src := t.TempDir()
	out := filepath.Join(t.TempDir(), "out")

	_, berr := RunStage("stage0", fakeTranspiler{}, src, out, fixedClock(0))
	assert.True(t, berr != nil)
}

func TestRunStage_TranspileErrorFailsStage(t *testing.T) {
	src := t.TempDir()
	out := filepath.Join(t.TempDir(), "out")

	writeSources(t, src, map[string]string{"lib.qc": "def f() -> int:\n    return 1\n"})

	failing := failingTranspiler{}

	_, berr := RunStage("stage0", failing, src, out, fixedClock(0))
	assert.True(t, berr != nil)
	assert.Equal(t, "stage0", berr.Stage)
}

type failingTranspiler struct{}

func (failingTranspiler) Transpile(filename string, src []byte) (string, error) {
	return "", errTranspile
}

var errTranspile = &BootstrapError{Stage: "test", Reason: "forced failure"}

func TestDiff_MatchingTreesReportNoMismatches(t *testing.T) {
	dir1 := t.TempDir()
	dir2 := t.TempDir()

	writeSources(t, dir1, map[string]string{"a.rs": "fn a() {}\n", manifestFilename: "{\"stage\":\"stage1\"}"})
	writeSources(t, dir2, map[string]string{"a.rs": "fn a() {}\n", manifestFilename: "{\"stage\":\"stage2\"}"})

	report, err := Diff(dir1, dir2)
	assert.True(t, err == nil)
	assert.True(t, report.Matches())
}

func TestDiff_ContentMismatchReportsFirstFileAndLineCount(t *testing.T) {
	dir1 := t.TempDir()
	dir2 := t.TempDir()

	writeSources(t, dir1, map[string]string{"a.rs": "fn a() {}\nfn b() {}\n"})
	writeSources(t, dir2, map[string]string{"a.rs": "fn a() {}\nfn c() {}\n"})

	report, err := Diff(dir1, dir2)
	assert.True(t, err == nil)
	assert.True(t, !report.Matches())
	assert.Equal(t, "a.rs", report.FirstMismatch)
	assert.Equal(t, 1, report.DiffLines)
}

func TestDiff_MissingFileIsReportedAsMismatch(t *testing.T) {
	dir1 := t.TempDir()
	dir2 := t.TempDir()

	writeSources(t, dir1, map[string]string{"a.rs": "fn a() {}\n"})

	report, err := Diff(dir1, dir2)
	assert.True(t, err == nil)
	assert.True(t, !report.Matches())
	assert.Equal(t, "a.rs", report.FirstMismatch)
}

func TestManifestRoundTrip(t *testing.T) {
	dir := t.TempDir()

	writeSources(t, dir, map[string]string{"a.rs": "fn a() {}\n"})

	built, err := buildManifest("stage0", dir, []string{"a.rs"}, 12)
	assert.True(t, err == nil)

	assert.True(t, writeManifest(dir, built) == nil)

	loaded, err := readManifest(dir)
	assert.True(t, err == nil)
	assert.Equal(t, built.Stage, loaded.Stage)
	assert.Equal(t, built.Files[0].Hash, loaded.Files[0].Hash)
}
