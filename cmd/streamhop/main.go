// Copyright 2025 The streamhop Authors. All rights reserved.
// Use of this source code is governed by a MPL
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/streamhop/streamhop/command/run"
	"github.com/streamhop/streamhop/command/version"
	"github.com/streamhop/streamhop/pool"
)

func rootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "streamhop",
		Short: "Streaming HTTP forward proxy",
	}
	cmd.AddCommand(
		run.Command(),
		version.Command(),
	)
	return cmd
}

func main() {
	if err := rootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if errors.Is(err, pool.ErrExhausted) {
			os.Exit(10)
		}
		os.Exit(100)
	}
}
