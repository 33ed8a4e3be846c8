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

// Package bootstrap sequences the three-stage self-hosting build
// (§4.6): stage 0 transpiles the source tree with this module's own
// pipeline, stage 1 transpiles it again with the binary built from stage
// 0's output, and stage 2 repeats with the binary built from stage 1's
// output. Parity between stage 1 and stage 2's output trees is the
// bootstrap-fixpoint property (P7).
package bootstrap

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	log "github.com/sirupsen/logrus"
)

// BootstrapError reports a failure in the controller itself: a stage
// whose inputs are missing, a stage whose transpile step failed, or a
// manifest that could not be written or read. It is distinct from a
// parity failure, which a byte-diff between two completed stages'
// outputs reports and which does not fail the build, only verification.
type BootstrapError struct {
	Stage  string
	Reason string
	Cause  error
}

func (e *BootstrapError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("bootstrap stage %s: %s: %v", e.Stage, e.Reason, e.Cause)
	}

	return fmt.Sprintf("bootstrap stage %s: %s", e.Stage, e.Reason)
}

func (e *BootstrapError) Unwrap() error { return e.Cause }

// mainModuleFile and libModuleFile are the names the stage-0 source tree reserves for
// the entry point and library root; run_transpile's special casing of
// these two files lives in RunStage below.
const (
	mainModuleFile = "main.qc"
	libModuleFile  = "lib.qc"
)

// RunStage transpiles every source file in sourceDir into outDir using
// transpiler, then writes a manifest recording each emitted file's hash.
// It rejects the stage if sourceDir does not exist or contains no source
// files, and fails if any single file's transpile step errors.
func RunStage(stage string, transpiler Transpiler, sourceDir, outDir string, clock func() int64) (*Manifest, *BootstrapError) {
	entries, err := os.ReadDir(sourceDir)
	if err != nil {
		return nil, &BootstrapError{Stage: stage, Reason: "missing stage input directory", Cause: err}
	}

	var sources []string

	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".qc") {
			continue
		}

		sources = append(sources, e.Name())
	}

	if len(sources) == 0 {
		return nil, &BootstrapError{Stage: stage, Reason: "stage input directory contains no source files"}
	}

	sort.Strings(sources)

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, &BootstrapError{Stage: stage, Reason: "could not create stage output directory", Cause: err}
	}

	start := clock()

	var modules []string

	var outputs []string

	for _, name := range sources {
		path := filepath.Join(sourceDir, name)

		src, err := os.ReadFile(path)
		if err != nil {
			return nil, &BootstrapError{Stage: stage, Reason: "could not read source file " + name, Cause: err}
		}

		emitted, err := transpiler.Transpile(path, src)
		if err != nil {
			return nil, &BootstrapError{Stage: stage, Reason: "transpile failed for " + name, Cause: err}
		}

		stem := strings.TrimSuffix(name, ".qc")

		outName := stem + ".rs"
		if name == mainModuleFile {
			outName = "main_gen.rs"
		} else if name != libModuleFile {
			modules = append(modules, stem)
		}

		if err := os.WriteFile(filepath.Join(outDir, outName), []byte(emitted), 0o644); err != nil {
			return nil, &BootstrapError{Stage: stage, Reason: "could not write output file " + outName, Cause: err}
		}

		outputs = append(outputs, outName)

		log.WithFields(log.Fields{"stage": stage, "file": name}).Debug("transpiled source file")
	}

	if err := writeModuleDecls(outDir, modules); err != nil {
		return nil, &BootstrapError{Stage: stage, Reason: "could not write module declarations", Cause: err}
	}

	manifest, err := buildManifest(stage, outDir, outputs, clock()-start)
	if err != nil {
		return nil, &BootstrapError{Stage: stage, Reason: "could not hash stage outputs", Cause: err}
	}

	if err := writeManifest(outDir, manifest); err != nil {
		return nil, &BootstrapError{Stage: stage, Reason: "could not write stage manifest", Cause: err}
	}

	log.WithFields(log.Fields{"stage": stage, "files": len(outputs)}).Info("stage complete")

	return manifest, nil
}

// writeModuleDecls prepends sorted `pub mod x;` declarations to
// main_gen.rs, mirroring setup_compilation_dir's generated module list
// for every non-main, non-lib source file in the stage.
func writeModuleDecls(outDir string, modules []string) error {
	mainPath := filepath.Join(outDir, "main_gen.rs")

	body, err := os.ReadFile(mainPath)
	if os.IsNotExist(err) {
		return nil
	} else if err != nil {
		return err
	}

	sort.Strings(modules)

	var b strings.Builder

	for _, m := range modules {
		b.WriteString("pub mod ")
		b.WriteString(m)
		b.WriteString(";\n")
	}

	b.Write(body)

	return os.WriteFile(mainPath, []byte(b.String()), 0o644)
}

// Result is the full outcome of a RunBootstrap call: each stage's
// manifest plus the stage1-vs-stage2 parity report.
type Result struct {
	Stage0, Stage1, Stage2 *Manifest
	Parity                 *DiffReport
}

// RunBootstrap sequences stage0 (host pipeline) -> stage1 (external,
// compiled from stage0's output) -> stage2 (external, compiled from
// stage1's output), then verifies stage1/stage2 parity. Building stage1
// and stage2's binaries from their predecessor's output is outside this
// package's scope (§5); callers supply the resulting binaries as
// ExternalTranspilers for stage1Binary and stage2Binary.
func RunBootstrap(sourceDir, workDir string, stage1Binary, stage2Binary string, clock func() int64) (*Result, *BootstrapError) {
	stage0Out := filepath.Join(workDir, "stage0_out")
	stage1Out := filepath.Join(workDir, "stage1_out")
	stage2Out := filepath.Join(workDir, "stage2_out")

	m0, berr := RunStage("stage0", HostTranspiler{}, sourceDir, stage0Out, clock)
	if berr != nil {
		return nil, berr
	}

	m1, berr := RunStage("stage1", ExternalTranspiler{BinaryPath: stage1Binary}, sourceDir, stage1Out, clock)
	if berr != nil {
		return nil, berr
	}

	m2, berr := RunStage("stage2", ExternalTranspiler{BinaryPath: stage2Binary}, sourceDir, stage2Out, clock)
	if berr != nil {
		return nil, berr
	}

	report, err := Diff(stage1Out, stage2Out)
	if err != nil {
		return nil, &BootstrapError{Stage: "verify", Reason: "could not compare stage1 and stage2 output", Cause: err}
	}

	if report.Matches() {
		log.Info("bootstrap stage1/stage2 parity confirmed")
	} else {
		log.WithFields(log.Fields{"first_mismatch": report.FirstMismatch, "diff_lines": report.DiffLines}).
			Warn("bootstrap parity failure")
	}

	return &Result{Stage0: m0, Stage1: m1, Stage2: m2, Parity: report}, nil
}
