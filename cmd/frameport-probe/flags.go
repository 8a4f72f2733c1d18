// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/frameport/lib/process"
)

// errHelpShown is returned by parseFlags after printing help; callers
// treat it as success.
var errHelpShown = errors.New("help shown")

// parseFlags parses args into flagSet. Parse failures and stray
// positional arguments are usage errors.
func parseFlags(flagSet *pflag.FlagSet, args []string, out io.Writer) error {
	flagSet.BoolP("help", "h", false, "show help")
	flagSet.SetOutput(io.Discard)
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			printFlags(flagSet, out)
			return errHelpShown
		}
		return process.WithCode(exitUsage, err)
	}
	if help, _ := flagSet.GetBool("help"); help {
		printFlags(flagSet, out)
		return errHelpShown
	}
	if flagSet.NArg() > 0 {
		return process.WithCode(exitUsage, fmt.Errorf("unexpected argument: %s", flagSet.Arg(0)))
	}
	return nil
}

func printFlags(flagSet *pflag.FlagSet, out io.Writer) {
	fmt.Fprintf(out, "Usage of frameport-probe %s:\n", flagSet.Name())
	flagSet.SetOutput(out)
	flagSet.PrintDefaults()
}
