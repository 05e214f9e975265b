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

// Package main implements the triage command line tool.
//
//	run       Extract artifacts from disk images
//	verify    Re-hash extracted files and validate the indexes
//	ls        List extracted files
//	unpack    Extract files from a sqlite archive
//	element   Query the index of an image (get, select, search, all)
//
// # Usage
//
// Extract the default Windows artifacts and list every file
//
//	triage run out/ disk1.img disk2.img
//
// Only extract the artifacts, into sqlite archives
//
//	triage run --quick --archive out/ disk1.img
//
// Use a different digest and keep an index
//
//	triage run --hash sha256 --index out/ disk1.img
//
// Check the output
//
//	triage verify --hash sha256 out/
//	triage ls --glob '**/*.evtx' out/
//	triage element search NTUSER.DAT out/disk1.img/item.db
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/forensicanalysis/triage/cmd"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "triage",
		Short:        "Extract forensic artifacts from disk images",
		SilenceUsage: true,
	}
	rootCmd.AddCommand(cmd.Run(), cmd.Verify(), cmd.Ls(), cmd.Unpack(), cmd.Element())
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("Error:", err)
		os.Exit(1)
	}
}
