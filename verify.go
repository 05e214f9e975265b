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

package triage

import (
	"fmt"
	"hash"
	"os"
	"path"
	"sort"

	"github.com/pkg/errors"
	"github.com/spf13/afero"

	"github.com/forensicanalysis/triage/digest"
	"github.com/forensicanalysis/triage/manifest"
	"github.com/forensicanalysis/triage/sqlitefs"
	"github.com/forensicanalysis/triage/store"
)

// Verify checks the output of earlier runs below root. For every image
// with a manifest, the extracted copies are hashed with the named
// algorithm and compared to the manifest digests. If the image has an
// index, its flaws are reported as well. Archive and index output can
// only be verified on the OS filesystem.
func Verify(fs afero.Fs, root, algorithm string) (flaws []string, err error) {
	h, err := digest.New(algorithm)
	if err != nil {
		return nil, err
	}
	_, isOsFs := fs.(*afero.OsFs)

	layout := Layout{Root: root}
	infos, err := afero.ReadDir(fs, root)
	if err != nil {
		return nil, errors.Wrap(err, "could not read output directory")
	}

	flaws = []string{}
	for _, info := range infos {
		if !info.IsDir() {
			continue
		}
		image := info.Name()
		if ok, _ := afero.Exists(fs, layout.Manifest(image)); !ok {
			continue
		}

		var imageFs afero.Fs = afero.NewBasePathFs(fs, layout.ImageDir(image))
		var archive *sqlitefs.FS
		if ok, _ := afero.Exists(fs, layout.Archive(image)); ok && isOsFs {
			archive, err = sqlitefs.New(layout.Archive(image))
			if err != nil {
				return nil, err
			}
			imageFs = archive
		}

		imageFlaws, err := verifyImage(fs, imageFs, layout, image, h)
		if err == nil && isOsFs {
			var indexFlaws []string
			indexFlaws, err = verifyIndex(fs, imageFs, layout, image)
			imageFlaws = append(imageFlaws, indexFlaws...)
		}
		if archive != nil {
			archive.Close() // nolint:errcheck
		}
		if err != nil {
			return nil, errors.Wrap(err, image)
		}
		for _, flaw := range imageFlaws {
			flaws = append(flaws, fmt.Sprintf("[%s] %s", image, flaw))
		}
	}
	return flaws, nil
}

func verifyImage(fs, imageFs afero.Fs, layout Layout, image string, h hash.Hash) ([]string, error) {
	records, err := manifest.Read(fs, layout.Manifest(image))
	if err != nil {
		return nil, err
	}

	var flaws []string
	checked := map[string]bool{}
	for _, record := range records {
		if record.Digest == "" {
			continue
		}
		exportPath := ExportPath(record.Partition, path.Dir(record.Path), path.Base(record.Path))
		if checked[exportPath] {
			continue
		}

		info, err := imageFs.Stat(exportPath)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
		checked[exportPath] = true

		f, err := imageFs.Open(exportPath)
		if err != nil {
			return nil, err
		}
		got, read := Digest(f, info.Size(), h)
		f.Close() // nolint:errcheck

		if read < info.Size() {
			flaws = append(flaws, fmt.Sprintf("could only read %d of %d bytes of %s", read, info.Size(), exportPath))
		}
		if got != record.Digest {
			flaws = append(flaws, fmt.Sprintf("digest mismatch for %s (is %s, expected %s)", exportPath, got, record.Digest))
		}
	}
	sort.Strings(flaws)
	return flaws, nil
}

func verifyIndex(fs, imageFs afero.Fs, layout Layout, image string) ([]string, error) {
	if ok, _ := afero.Exists(fs, layout.Index(image)); !ok {
		return nil, nil
	}
	s, err := store.Open(layout.Index(image))
	if err != nil {
		return nil, err
	}
	defer s.Close()
	s.SetFS(imageFs)
	return s.Validate()
}
