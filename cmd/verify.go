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

package cmd

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/forensicanalysis/triage"
	"github.com/forensicanalysis/triage/digest"
)

// ErrVerificationFailed is returned by verify if any flaw was found.
var ErrVerificationFailed = errors.New("verification failed")

// Verify is the triage verify commandline subcommand
func Verify() *cobra.Command {
	var noFail bool
	var hash string
	verifyCommand := &cobra.Command{
		Use:   "verify <output-directory>",
		Short: "Re-hash extracted files and validate the indexes",
		Args:  requireOneDirectory,
		RunE: func(cmd *cobra.Command, args []string) error {
			flaws, err := triage.Verify(afero.NewOsFs(), args[0], hash)
			if err != nil {
				return err
			}
			if len(flaws) > 0 {
				for i, v := range flaws {
					flaws[i] = strings.Replace(v, "\"", "\\\"", -1)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "[\"%s\"]\n", strings.Join(flaws, "\", \""))
				if noFail {
					return nil
				}
				return ErrVerificationFailed
			}
			return nil
		},
	}
	verifyCommand.Flags().BoolVar(&noFail, "no-fail", false, "return exit code 0")
	verifyCommand.Flags().StringVar(&hash, "hash", digest.Default, "digest algorithm the directory listings were written with")
	return verifyCommand
}
