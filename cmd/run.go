// Copyright (c) 2021 Siemens AG
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to
// use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies of
// the Software, and to permit persons to whom the Software is furnished to do so,
// subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY, FITNESS
// FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE AUTHORS OR
// COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY, WHETHER
// IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN
// CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.
//
// Author(s): Jonas Plum

// Package cmd implements the subcommands of the triage command line tool.
package cmd

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/forensicanalysis/triage"
	"github.com/forensicanalysis/triage/digest"
	"github.com/forensicanalysis/triage/provider/aferofs"
)

// Run is the triage run commandline subcommand
func Run() *cobra.Command {
	var quick, archive, index, logical bool
	var configFile, hash string
	var workers int
	runCommand := &cobra.Command{
		Use:   "run <output-directory> <image>...",
		Short: "Extract artifacts from disk images",
		Args:  cobra.MinimumNArgs(2), //nolint:gomnd
		RunE: func(cmd *cobra.Command, args []string) error {
			config := triage.DefaultConfig()
			if configFile != "" {
				var err error
				config, err = triage.LoadConfig(configFile)
				if err != nil {
					return err
				}
			}

			config.OutputRoot = args[0]
			config.Quick = quick
			config.Archive = config.Archive || archive
			config.Index = config.Index || index
			if cmd.Flags().Changed("workers") {
				config.Workers = workers
			}
			if cmd.Flags().Changed("hash") {
				config.Hash = hash
			}
			config.Logger = log.New(cmd.ErrOrStderr(), "", log.LstdFlags)
			if logical {
				config.Provider = aferofs.New(afero.NewOsFs())
			}

			images := existingPaths(args[1:], config.Logger)
			if len(images) == 0 {
				return triage.ErrNoImages
			}

			summary, err := triage.Run(config, images)
			if err != nil {
				return err
			}
			printSummary(cmd.OutOrStdout(), summary)
			return nil
		},
	}
	runCommand.Flags().BoolVar(&quick, "quick", false, "only extract target directories and files, no directory listing")
	runCommand.Flags().StringVar(&configFile, "config", "", "YAML file with target directories, target files and key filenames")
	runCommand.Flags().IntVar(&workers, "workers", 0, "number of images processed in parallel")
	runCommand.Flags().StringVar(&hash, "hash", digest.Default, "digest algorithm, one of "+strings.Join(digest.Names(), ", "))
	runCommand.Flags().BoolVar(&archive, "archive", false, "write extracted files into a sqlite archive per image")
	runCommand.Flags().BoolVar(&index, "index", false, "record every file in an item.db per image")
	runCommand.Flags().BoolVar(&logical, "logical", false, "images are directories with one subdirectory per partition")
	return runCommand
}

func existingPaths(paths []string, logger *log.Logger) []string {
	var existing []string
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			logger.Printf("skipping %s: %s", p, err)
			continue
		}
		existing = append(existing, p)
	}
	return existing
}

func printSummary(w io.Writer, summary *triage.Summary) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0) //nolint:gomnd
	fmt.Fprintln(tw, "IMAGE\tFILESYSTEMS\tDIRECTORIES\tFILES\tEXTRACTED\tERRORS\tSTATUS")
	for _, image := range summary.Images {
		status := "ok"
		if image.Err != nil {
			status = image.Err.Kind.String() + " error: " + image.Err.Err.Error()
		}
		counts := image.ErrorsByKind()
		var errs []string
		for _, kind := range triage.Kinds(counts) {
			errs = append(errs, fmt.Sprintf("%s=%d", kind, counts[kind]))
		}
		if len(errs) == 0 {
			errs = []string{"-"}
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%s\t%s\n", image.Name, image.Filesystems,
			image.Stats.Directories, image.Stats.Files, image.Stats.Extracted, strings.Join(errs, ","), status)
	}
	tw.Flush() // nolint:errcheck
}
