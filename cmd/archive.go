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
	"io"
	"io/fs"
	"log"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/forensicanalysis/fsdoublestar"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/forensicanalysis/triage/sqlitefs"
)

func requireOneDirectory(_ *cobra.Command, args []string) error {
	if len(args) != 1 {
		return errors.New("requires exactly one output directory")
	}
	if _, err := os.Stat(args[0]); os.IsNotExist(err) {
		return errors.Wrap(os.ErrNotExist, args[0])
	}
	return nil
}

func isArchive(name string) bool {
	return strings.HasSuffix(name, ".sqlar")
}

// openOutput opens an output directory or a single archive.
func openOutput(name string) (afero.Fs, func(), error) {
	if isArchive(name) {
		if _, err := os.Stat(name); err != nil {
			return nil, nil, err
		}
		archive, err := sqlitefs.New(name)
		if err != nil {
			return nil, nil, err
		}
		return archive, func() { archive.Close() }, nil
	}
	return afero.NewBasePathFs(afero.NewOsFs(), name), func() {}, nil
}

// Ls is the triage ls commandline subcommand
func Ls() *cobra.Command {
	var pattern string
	lsCommand := &cobra.Command{
		Use:   "ls <output-directory|archive.sqlar>",
		Short: "List extracted files",
		Args:  requireOneDirectory,
		RunE: func(cmd *cobra.Command, args []string) error {
			src, teardown, err := openOutput(args[0])
			if err != nil {
				return err
			}
			defer teardown()

			names, err := glob(src, pattern)
			if err != nil {
				return err
			}
			for _, name := range names {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
	lsCommand.Flags().StringVar(&pattern, "glob", "**", "only list files matching the pattern, e.g. '**/*.evtx', '**N' limits the depth to N levels")
	return lsCommand
}

// globDepth is the number of directory levels a bare "**" descends.
const globDepth = 64

// expandDoubleStar bounds every bare "**" component by globDepth instead of
// the three levels fsdoublestar descends by default.
func expandDoubleStar(pattern string) string {
	components := strings.Split(strings.TrimLeft(pattern, "/"), "/")
	for i, component := range components {
		if component == "**" {
			components[i] = "**" + strconv.Itoa(globDepth)
		}
	}
	return strings.Join(components, "/")
}

// glob returns the slash separated names of all regular files in src that
// match pattern.
func glob(src afero.Fs, pattern string) ([]string, error) {
	fsys := afero.NewIOFS(src)
	matches, err := fsdoublestar.Glob(fsys, expandDoubleStar(pattern))
	if err != nil {
		return nil, err
	}
	var names []string
	for _, match := range matches {
		info, err := fs.Stat(fsys, match)
		if err != nil || info.IsDir() {
			continue
		}
		names = append(names, "/"+match)
	}
	return names, nil
}

func first(s string, n int) string {
	if len(s) < n {
		n = len(s)
	}
	return s[:n]
}

func last(s string, n int) string {
	if len(s) < n {
		n = len(s)
	}
	return s[len(s)-n:]
}

func splitExt(filePath string) (nameOnly, ext string) {
	ext = path.Ext(filePath)
	nameOnly = filePath[:len(filePath)-len(ext)]
	return nameOnly, ext
}

func normalizeFilePath(filePath string) string {
	maxLength := 64
	maxSegmentLength := 4
	filePath = strings.TrimLeft(filePath, "/")
	pathSegments := strings.Split(filePath, "/")
	normalizedFilePath := strings.Join(pathSegments, "_")

	// get first 4 letters of every directory, while longer than maxLength
	for i := 0; i < len(pathSegments)-1 && len(normalizedFilePath) > maxLength; i++ {
		pathSegments[i] = first(pathSegments[i], maxSegmentLength)
		normalizedFilePath = strings.Join(pathSegments, "_")
	}

	if len(normalizedFilePath) > maxLength {
		// if still to long get first maxSegmentLength letters of filename + extension
		nameOnly, ext := splitExt(pathSegments[len(pathSegments)-1])
		pathSegments[len(pathSegments)-1] = first(nameOnly, maxSegmentLength) + ext
		normalizedFilePath = strings.Join(pathSegments, "_")
	}

	return last(normalizedFilePath, maxLength)
}

func destinationPath(fullPath string, mode string) string {
	switch mode {
	case "basename":
		return path.Base(fullPath)
	case "compact":
		return normalizeFilePath(fullPath)
	default:
		return strings.TrimLeft(fullPath, "/")
	}
}

// Unpack is the triage unpack commandline subcommand
func Unpack() *cobra.Command {
	var mode string
	unpackCmd := &cobra.Command{
		Use:   "unpack <archive.sqlar> <destination>",
		Short: "Extract files from a sqlite archive",
		Args:  cobra.ExactArgs(2), //nolint:gomnd
		RunE: func(cmd *cobra.Command, args []string) error {
			if !isArchive(args[0]) {
				return errors.Errorf("%s is not a sqlite archive", args[0])
			}
			srcFS, teardown, err := openOutput(args[0])
			if err != nil {
				return err
			}
			defer teardown()

			if err := os.MkdirAll(args[1], 0755); err != nil {
				return err
			}
			destFS := afero.NewBasePathFs(afero.NewOsFs(), args[1])

			return unpack(srcFS, destFS, mode, cmd.OutOrStdout())
		},
	}

	usage := `define the export filename and folder structure. can be one of:
folder (e.g. '1/Users/user/AppData/Local/Google/Chrome/User Data/Default/Extensions/xx/1.11_1/example.json')
compact (e.g. '1_User_user_AppD_Loca_Goog_Chro_User_Defa_Exte_xx_1.11_exam.json')
basename (e.g. 'example.json')
`
	unpackCmd.Flags().StringVar(&mode, "mode", "folder", usage)
	return unpackCmd
}

func unpack(srcFS, destFS afero.Fs, mode string, out io.Writer) error {
	return afero.Walk(srcFS, "/", func(srcPath string, info os.FileInfo, err error) error {
		if err != nil {
			log.Println(err)
		}
		if err != nil || info == nil || info.IsDir() {
			return nil
		}

		fullPath := "/" + strings.TrimLeft(filepath.ToSlash(srcPath), "/")
		dest := destinationPath(fullPath, mode)

		fmt.Fprintf(out, "unpack '%s' to '%s'\n", fullPath, dest)
		return copyFile(srcFS, destFS, fullPath, dest)
	})
}

func copyFile(srcFS, destFS afero.Fs, src, dest string) error {
	if err := destFS.MkdirAll(path.Dir("/"+dest), 0755); err != nil {
		return err
	}
	r, err := srcFS.Open(src)
	if err != nil {
		return err
	}
	defer r.Close()

	w, err := destFS.Create("/" + dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(w, r); err != nil {
		w.Close() // nolint:errcheck
		return errors.Wrapf(err, "could not copy %s", src)
	}
	return w.Close()
}
