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

// Package triage extracts forensic artifacts from batches of disk images.
//
// Every image is opened through a provider, its partitions are mounted and
// each filesystem is walked from the root. Regular files are hashed and
// listed in a manifest, files matching the extraction policy are copied
// to the output directory.
//
// Output layout
//
// For an output root and an image "disk.img":
//     out/
//     └── disk.img/
//         ├── DirectoryListing-disk.img.csv
//         ├── item.db           (--index)
//         ├── disk.img.sqlar    (--archive, holds the partition folders)
//         ├── 1/
//         │   └── Windows/System32/config/SAM
//         └── 2/
//             └── Users/a/NTUSER.DAT
//
// The manifest has one row per regular file: image name, partition
// ordinal, file id, absolute path and hex digest. Rows are appended, so
// running twice into the same output lists files twice.
//
// Images are processed in parallel by a bounded number of workers, the
// partitions of one image one after another. Failures are returned as
// *Error values tagged with their kind, image, partition and path. Only a
// missing image list ends a run, everything else is part of the Summary.
package triage
