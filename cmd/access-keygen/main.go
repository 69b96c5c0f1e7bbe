// accessd - authenticated, time-bounded network access control
// Copyright (C) 2026 accessd-project
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// SPDX-License-Identifier: LGPL-3.0-or-later

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/accessd-project/accessd/internal/version"
	"github.com/accessd-project/accessd/keys"
)

var rootCmd = &cobra.Command{
	Use:   "access-keygen <NAME>",
	Short: "Generate a keypair for NaCl authenticated encryption",
	Long: `access-keygen writes a YAML file with a fresh public/private box
keypair for the named party. Exchange the public halves between client
and server key data files.`,
	Args:    cobra.ExactArgs(1),
	Version: version.String(),
	RunE:    runKeygen,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runKeygen(cmd *cobra.Command, args []string) error {
	kp, err := keys.Generate()
	if err != nil {
		return err
	}

	filename := fmt.Sprintf("%s_keypair.yaml", args[0])
	if err := kp.WriteFile(filename); err != nil {
		return err
	}
	fmt.Printf("wrote keypair to %s\n", filename)
	return nil
}
