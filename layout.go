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
	"path"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	indexName      = "item.db"
	manifestPrefix = "DirectoryListing-"
	manifestSuffix = ".csv"
	archiveSuffix  = ".sqlar"
)

// Layout places the output of a run below an output root:
//
//	<root>/<image>/DirectoryListing-<image>.csv
//	<root>/<image>/item.db
//	<root>/<image>/<image>.sqlar
//	<root>/<image>/<partition>/<path>/<name>
type Layout struct {
	Root string
}

// ImageDir is the output directory of an image.
func (l Layout) ImageDir(image string) string {
	return filepath.Join(l.Root, image)
}

// Manifest is the path of the manifest of an image.
func (l Layout) Manifest(image string) string {
	return filepath.Join(l.Root, image, ManifestName(image))
}

// Index is the path of the evidence index of an image.
func (l Layout) Index(image string) string {
	return filepath.Join(l.Root, image, indexName)
}

// Archive is the path of the sqlite archive of an image.
func (l Layout) Archive(image string) string {
	return filepath.Join(l.Root, image, image+archiveSuffix)
}

// ManifestName returns the file name of the manifest of an image.
func ManifestName(image string) string {
	return manifestPrefix + image + manifestSuffix
}

// ImageFromManifest returns the image name of a manifest file name.
func ImageFromManifest(name string) (string, bool) {
	if !strings.HasPrefix(name, manifestPrefix) || !strings.HasSuffix(name, manifestSuffix) {
		return "", false
	}
	image := strings.TrimSuffix(strings.TrimPrefix(name, manifestPrefix), manifestSuffix)
	return image, image != ""
}

// ExportPath is the slash separated path of an extracted file relative to
// the image output directory. dir is the absolute directory of the file
// inside its filesystem.
func ExportPath(partition int, dir, name string) string {
	rel := strings.TrimLeft(dir, "/")
	return path.Join("/", strconv.Itoa(partition), rel, name)
}
