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
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/accessd-project/accessd/client"
	"github.com/accessd-project/accessd/internal/version"
)

var (
	flagClientAddr string
	flagStateFile  string
	flagKeyFile    string
	flagPreferV4   bool
)

var rootCmd = &cobra.Command{
	Use:   "access [flags] <HOST>",
	Short: "Sends an access request to a host",
	Long: `access sends one authenticated session request to the access daemon
on HOST, waits up to five seconds for the verdict, prints it and exits.`,
	Args:    cobra.ExactArgs(1),
	Version: version.String(),
	RunE:    runRequest,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "failed: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	home, _ := os.UserHomeDir()
	rootCmd.Flags().StringVarP(&flagClientAddr, "addr", "a", "0.0.0.0", "client address to request access for")
	rootCmd.Flags().StringVarP(&flagStateFile, "state-file", "s", filepath.Join(home, ".access", "state.yaml"), "path to state file")
	rootCmd.Flags().StringVarP(&flagKeyFile, "key-data-file", "k", filepath.Join(home, ".access", "keydata.yaml"), "path to key data file")
	rootCmd.Flags().BoolVarP(&flagPreferV4, "prefer-ipv4", "4", false, "prefer IPv4 address")
	rootCmd.SilenceUsage = true
}

func runRequest(cmd *cobra.Command, args []string) error {
	remote, err := client.ResolveRemote(args[0], flagPreferV4)
	if err != nil {
		return err
	}
	clientAddr, err := client.ParseClientAddr(flagClientAddr)
	if err != nil {
		return err
	}

	c, err := client.New(flagStateFile, flagKeyFile)
	if err != nil {
		return err
	}

	resp, err := c.Request(remote, clientAddr)
	if err != nil {
		return err
	}
	fmt.Printf("%s: %s\n", remote, resp)
	return nil
}
