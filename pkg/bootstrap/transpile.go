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
	"bytes"
	"fmt"
	"os/exec"
	"strings"

	"github.com/quichelang/quiche/pkg/codegen"
	"github.com/quichelang/quiche/pkg/desugar"
	"github.com/quichelang/quiche/pkg/parser"
	"github.com/quichelang/quiche/pkg/semantic"
	"github.com/quichelang/quiche/pkg/source"
)

// Transpiler turns one source file's contents into emitted target text.
// Stage 0 is always a HostTranspiler (this binary's own pipeline); stage 1
// and stage 2 are ExternalTranspilers wrapping the binary that the
// previous stage's own output was compiled into — compiling that binary is
// itself outside the core's responsibility, per §5's "bootstrap controller
// sequences sub-processes externally."
type Transpiler interface {
	Transpile(filename string, src []byte) (string, error)
}

// HostTranspiler runs this module's own lexer/parser/desugar/semantic/
// codegen pipeline in-process. It is always the stage-0 compiler.
type HostTranspiler struct{}

// Transpile implements Transpiler by running the full in-process pipeline.
func (HostTranspiler) Transpile(filename string, src []byte) (string, error) {
	file := source.NewSourceFile(filename, src)

	mod, err := parser.Parse(file)
	if err != nil {
		return "", fmt.Errorf("parse %s: %w", filename, err)
	}

	lowered, derr := desugar.Lower(mod)
	if derr != nil {
		return "", fmt.Errorf("desugar %s: %w", filename, derr)
	}

	result, serrs := semantic.Analyze(lowered)
	if len(serrs) > 0 {
		msgs := make([]string, len(serrs))
		for i, e := range serrs {
			msgs[i] = e.Error()
		}

		return "", fmt.Errorf("semantic %s: %s", filename, strings.Join(msgs, "; "))
	}

	out, cerr := codegen.EmitModule(lowered, result)
	if cerr != nil {
		return "", fmt.Errorf("codegen %s: %w", filename, cerr)
	}

	return out, nil
}

// ExternalTranspiler invokes a previously-built compiler binary as a
// subprocess, mirroring `run_transpile`'s `subprocess.run([binary, file])`
// mechanism: the binary receives one input file path and emits target
// source on stdout.
type ExternalTranspiler struct {
	BinaryPath string
}

// Transpile implements Transpiler by shelling out to BinaryPath.
func (e ExternalTranspiler) Transpile(filename string, src []byte) (string, error) {
	cmd := exec.Command(e.BinaryPath, filename)

	var stdout, stderr bytes.Buffer

	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%s %s: %w: %s", e.BinaryPath, filename, err, stderr.String())
	}

	return stdout.String(), nil
}
