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
	"fmt"
	"os"
	"runtime/debug"

	"github.com/quichelang/quiche/pkg/cliutil"
	"github.com/spf13/cobra"
)

// Version is filled when building with make, but *not* when installing via
// "go install".
var Version string

// rootCmd is quichec itself: a single-file emission-mode driver, not a
// project-scaffolding CLI. It takes exactly one source file and an
// --emit mode selecting which stage of the pipeline to print.
var rootCmd = &cobra.Command{
	Use:   "quichec [flags] file",
	Short: "A source-to-source compiler for the Quiche language surface.",
	Long:  "Transpiles a single Quiche source file to its RustOut target, or dumps an intermediate pipeline stage.",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if cliutil.GetFlag(cmd, "version") {
			printVersion()
			return
		}

		if len(args) != 1 {
			cmd.Usage() //nolint:errcheck
			os.Exit(2)
		}

		runCompile(cmd, args[0])
	},
}

func printVersion() {
	fmt.Print("quichec ")

	if Version != "" {
		fmt.Print(Version)
	} else if info, ok := debug.ReadBuildInfo(); ok {
		fmt.Print(info.Main.Version)
	} else {
		fmt.Print("(unknown version)")
	}

	fmt.Println()
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main(). It only needs to happen
// once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.Flags().Bool("version", false, "report the version of this executable")
	rootCmd.Flags().String("emit", "code", "what to emit: code, ast, raw-ast")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "increase logging verbosity")
	rootCmd.AddCommand(inspectCmd)
}
