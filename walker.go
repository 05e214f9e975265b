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
	"hash"
	"log"
	"path"
	"strings"

	"github.com/pkg/errors"

	"github.com/forensicanalysis/triage/manifest"
	"github.com/forensicanalysis/triage/provider"
)

var specialNames = map[string]bool{
	"$OrphanFiles": true,
	".":            true,
	"..":           true,
}

// Indexer records processed files in an evidence index. exportPath is
// empty for files that were not extracted.
type Indexer interface {
	IndexFile(record manifest.Record, size int64, exportPath string) error
}

// Stats counts what a walk over one filesystem did.
type Stats struct {
	Directories int
	Files       int
	Records     int
	Extracted   int
	Skipped     int
	Errors      []*Error
}

func (s *Stats) add(o *Stats) {
	s.Directories += o.Directories
	s.Files += o.Files
	s.Records += o.Records
	s.Extracted += o.Extracted
	s.Skipped += o.Skipped
	s.Errors = append(s.Errors, o.Errors...)
}

// Walker processes a single mounted filesystem.
type Walker struct {
	fs        provider.Filesystem
	image     string
	partition provider.Partition
	policy    *Policy
	copier    *Copier
	manifest  *manifest.Writer
	index     Indexer
	hash      hash.Hash
	logger    *log.Logger
}

// NewWalker creates a Walker for the filesystem of a partition. listing
// and index may be nil.
func NewWalker(fs provider.Filesystem, image string, partition provider.Partition,
	policy *Policy, copier *Copier, listing *manifest.Writer, index Indexer,
	h hash.Hash, logger *log.Logger) *Walker {
	return &Walker{
		fs:        fs,
		image:     image,
		partition: partition,
		policy:    policy,
		copier:    copier,
		manifest:  listing,
		index:     index,
		hash:      h,
		logger:    logger,
	}
}

// Walk visits every directory reachable from the root once. Every regular
// file is hashed and recorded in the manifest, files matched by the policy
// are extracted as well. Directories that cannot be listed are skipped
// together with their subtree.
func (w *Walker) Walk() *Stats {
	stats := &Stats{}

	root, err := w.fs.Root()
	if err != nil {
		w.fail(stats, DirectoryError, "/", err)
		return stats
	}
	if root.Path == "" {
		root.Path = "/"
	}

	visited := map[uint64]bool{root.ID: true}
	queue := []*provider.Entry{root}
	for len(queue) > 0 {
		dir := queue[len(queue)-1]
		queue = queue[:len(queue)-1]

		entries, err := w.fs.ReadDir(dir)
		if err != nil {
			w.fail(stats, DirectoryError, dir.Path, err)
			continue
		}
		stats.Directories++

		var subdirectories []*provider.Entry
		for _, entry := range entries {
			if !w.accept(stats, dir, entry) {
				continue
			}
			switch entry.Kind {
			case provider.KindDirectory:
				if visited[entry.ID] {
					w.logger.Printf("partition %d: %s: directory %d already visited, skipping", w.partition.Index, entry.Path, entry.ID)
					stats.Skipped++
					continue
				}
				visited[entry.ID] = true
				subdirectories = append(subdirectories, entry)
			case provider.KindRegular:
				w.processFile(stats, dir.Path, entry)
			default:
				stats.Skipped++
			}
		}

		// push in reverse, so subdirectories are visited in listing order
		for i := len(subdirectories) - 1; i >= 0; i-- {
			queue = append(queue, subdirectories[i])
		}
	}
	return stats
}

// Quick extracts the content of the target directories and the target
// files without walking the filesystem. Nothing is hashed or recorded.
func (w *Walker) Quick() *Stats {
	stats := &Stats{}

	for _, file := range w.policy.TargetFiles() {
		entry, ok := w.resolve(stats, file)
		if !ok {
			continue
		}
		if entry.Kind != provider.KindRegular {
			stats.Skipped++
			continue
		}
		w.logger.Printf("partition %d: extracting %s : %d", w.partition.Index, file, entry.ID)
		w.extractFile(stats, path.Dir(file), entry)
	}

	for _, dir := range w.policy.TargetDirectories() {
		entry, ok := w.resolve(stats, dir)
		if !ok {
			continue
		}
		if entry.Kind != provider.KindDirectory {
			stats.Skipped++
			continue
		}
		entry.Path = dir
		w.logger.Printf("partition %d: extracting %s", w.partition.Index, dir)

		entries, err := w.fs.ReadDir(entry)
		if err != nil {
			w.fail(stats, DirectoryError, dir, err)
			continue
		}
		stats.Directories++
		for _, child := range entries {
			if !w.accept(stats, entry, child) {
				continue
			}
			if child.Kind != provider.KindRegular {
				continue
			}
			w.extractFile(stats, dir, child)
		}
	}
	return stats
}

func (w *Walker) resolve(stats *Stats, fullPath string) (*provider.Entry, bool) {
	entry, err := provider.Resolve(w.fs, fullPath)
	if err != nil {
		if errors.Is(err, provider.ErrNotFound) {
			w.logger.Printf("partition %d (%s): cannot find %s", w.partition.Index, w.partition.Description, fullPath)
			return nil, false
		}
		w.fail(stats, EntryError, fullPath, err)
		return nil, false
	}
	if specialNames[entry.Name] {
		return nil, false
	}
	return entry, true
}

// accept filters entries without a name, without metadata, unallocated
// entries and the special names. Names that cannot be placed in an output
// path are entry errors.
func (w *Walker) accept(stats *Stats, dir, entry *provider.Entry) bool {
	if entry == nil || entry.Name == "" || !entry.Meta || !entry.Allocated || specialNames[entry.Name] {
		stats.Skipped++
		return false
	}
	if strings.ContainsAny(entry.Name, "/\x00") {
		w.fail(stats, EntryError, path.Join(dir.Path, entry.Name), errors.Errorf("invalid file name %q", entry.Name))
		return false
	}
	if entry.Path == "" {
		entry.Path = path.Join(dir.Path, entry.Name)
	}
	return true
}

func (w *Walker) processFile(stats *Stats, dir string, entry *provider.Entry) {
	stats.Files++
	record := manifest.Record{
		Image:     w.image,
		Partition: w.partition.Index,
		ID:        entry.ID,
		Path:      entry.Path,
	}

	content, err := w.fs.Open(entry)
	opened := err == nil
	if !opened {
		w.fail(stats, IOError, entry.Path, errors.Wrap(err, "could not open file"))
	} else {
		defer content.Close()
		var read int64
		record.Digest, read = Digest(content, entry.Size, w.hash)
		if read < entry.Size {
			w.logger.Printf("partition %d: %s: short read, hashed %d of %d bytes", w.partition.Index, entry.Path, read, entry.Size)
		}
	}

	var exportPath string
	if opened && w.policy.Classify(dir, entry.Name) != None {
		exportPath = w.copy(stats, dir, entry, content)
	}

	if w.manifest != nil {
		if err := w.manifest.Append(record); err != nil {
			w.fail(stats, IOError, entry.Path, err)
		} else {
			stats.Records++
		}
	}

	if w.index != nil {
		if err := w.index.IndexFile(record, entry.Size, exportPath); err != nil {
			w.fail(stats, IOError, entry.Path, errors.Wrap(err, "could not index file"))
		}
	}
}

func (w *Walker) extractFile(stats *Stats, dir string, entry *provider.Entry) {
	content, err := w.fs.Open(entry)
	if err != nil {
		w.fail(stats, IOError, entry.Path, errors.Wrap(err, "could not open file"))
		return
	}
	defer content.Close()
	w.copy(stats, dir, entry, content)
}

// copy extracts entry and returns the export path, or an empty string if
// the copy failed.
func (w *Walker) copy(stats *Stats, dir string, entry *provider.Entry, content provider.Content) string {
	dst := ExportPath(w.partition.Index, dir, entry.Name)
	w.logger.Printf("copying %s >> %s", entry.Path, dst)

	written, err := w.copier.Copy(content, entry.Size, dst)
	if err != nil {
		w.fail(stats, IOError, entry.Path, err)
		return ""
	}
	if written < entry.Size {
		w.logger.Printf("partition %d: %s: short read, copied %d of %d bytes", w.partition.Index, entry.Path, written, entry.Size)
	}
	stats.Extracted++
	return dst
}

func (w *Walker) fail(stats *Stats, kind ErrorKind, p string, err error) {
	e := &Error{Kind: kind, Image: w.image, Partition: w.partition.Index, Path: p, Err: err}
	w.logger.Print(e.detail())
	stats.Errors = append(stats.Errors, e)
}
