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
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// excludedFromDiff lists artifacts whose content is hash- or
// path-dependent and therefore excluded from byte-parity comparison
// (§4.6). manifest.json embeds its own stage's file hashes and wall-clock
// duration, neither of which is expected to match between two separately
// timed stage runs.
var excludedFromDiff = map[string]bool{
	manifestFilename: true,
}

// DiffReport is the outcome of comparing two stage output trees. A zero
// value (Mismatches empty) means the trees matched; FirstMismatch and
// DiffLines describe only the first mismatching file found, per the
// controller's "report the first mismatching file and a line-count of
// the diff" contract -- it is not an exhaustive listing of every
// difference in the tree.
type DiffReport struct {
	FirstMismatch string
	DiffLines     int
	Mismatches    []string
}

// Matches reports whether the two trees were byte-identical (modulo
// excluded artifacts).
func (r *DiffReport) Matches() bool {
	return len(r.Mismatches) == 0
}

// Diff recursively compares every non-excluded file under dir1 and dir2,
// reporting missing files and content mismatches, and surfacing the
// first mismatch's diff-line-count for the controller's verification
// report (grounded on debug_diff.py's normalize-then-find-first-
// difference approach, adapted here to a per-file line count rather than
// a single character-offset context window).
func Diff(dir1, dir2 string) (*DiffReport, error) {
	files1, err := relativeFiles(dir1)
	if err != nil {
		return nil, err
	}

	report := &DiffReport{}

	for _, rel := range files1 {
		path1 := filepath.Join(dir1, rel)
		path2 := filepath.Join(dir2, rel)

		data1, err := os.ReadFile(path1)
		if err != nil {
			return nil, err
		}

		data2, err := os.ReadFile(path2)
		if os.IsNotExist(err) {
			report.Mismatches = append(report.Mismatches, fmt.Sprintf("missing in %s: %s", dir2, rel))
			continue
		} else if err != nil {
			return nil, err
		}

		if string(data1) == string(data2) {
			continue
		}

		lines := diffLineCount(string(data1), string(data2))

		report.Mismatches = append(report.Mismatches, fmt.Sprintf("content mismatch: %s (%d lines differ)", rel, lines))

		if report.FirstMismatch == "" {
			report.FirstMismatch = rel
			report.DiffLines = lines
		}
	}

	files2, err := relativeFiles(dir2)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	for _, rel := range files2 {
		if _, err := os.Stat(filepath.Join(dir1, rel)); os.IsNotExist(err) {
			report.Mismatches = append(report.Mismatches, fmt.Sprintf("missing in %s: %s", dir1, rel))
		}
	}

	if report.FirstMismatch == "" && len(report.Mismatches) > 0 {
		first := strings.TrimPrefix(report.Mismatches[0], fmt.Sprintf("missing in %s: ", dir2))
		report.FirstMismatch = strings.TrimPrefix(first, fmt.Sprintf("missing in %s: ", dir1))
	}

	return report, nil
}

// diffLineCount counts how many corresponding lines differ between a and
// b, plus any trailing lines present in the longer text.
func diffLineCount(a, b string) int {
	linesA := strings.Split(a, "\n")
	linesB := strings.Split(b, "\n")

	n := len(linesA)
	if len(linesB) > n {
		n = len(linesB)
	}

	count := 0

	for i := 0; i < n; i++ {
		var la, lb string

		if i < len(linesA) {
			la = linesA[i]
		}

		if i < len(linesB) {
			lb = linesB[i]
		}

		if la != lb {
			count++
		}
	}

	return count
}

// relativeFiles walks dir and returns every regular file's path relative
// to dir, excluding hash/path-dependent artifacts, in sorted order.
func relativeFiles(dir string) ([]string, error) {
	var out []string

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if info.IsDir() {
			return nil
		}

		if excludedFromDiff[info.Name()] {
			return nil
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}

		out = append(out, rel)

		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(out)

	return out, nil
}
