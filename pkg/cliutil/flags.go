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

// Package cliutil holds small cobra flag-reading helpers shared by
// cmd/quichec's subcommands, following the teacher's pkg/cmd/util
// pattern of exiting the process (after printing the error) on a flag
// read that should never fail rather than threading the error upward.
package cliutil

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// GetFlag reads a boolean flag, exiting the process if the flag was not
// registered.
func GetFlag(cmd *cobra.Command, flag string) bool {
	v, err := cmd.Flags().GetBool(flag)
	if err != nil {
		fmt.Println(err)
		os.Exit(2)
	}

	return v
}

// GetString reads a string flag, exiting the process if the flag was not
// registered.
func GetString(cmd *cobra.Command, flag string) string {
	v, err := cmd.Flags().GetString(flag)
	if err != nil {
		fmt.Println(err)
		os.Exit(2)
	}

	return v
}
