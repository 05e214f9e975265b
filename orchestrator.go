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
	"log"
	"os"
	"runtime"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"github.com/spf13/afero"

	"github.com/forensicanalysis/triage/digest"
	"github.com/forensicanalysis/triage/manifest"
	"github.com/forensicanalysis/triage/provider/diskimage"
	"github.com/forensicanalysis/triage/sqlitefs"
	"github.com/forensicanalysis/triage/store"
)

// ErrNeedsOsFs is returned if archive or index output is requested on an
// output filesystem that is not the OS filesystem.
var ErrNeedsOsFs = errors.New("archive and index output require the OS filesystem")

// ImageResult is the outcome of processing one image.
type ImageResult struct {
	Name        string
	Path        string
	Filesystems int
	Stats       Stats
	// Err is set if the image could not be processed at all.
	Err *Error
}

// ErrorsByKind counts the errors of the image, including the setup error.
func (r *ImageResult) ErrorsByKind() map[ErrorKind]int {
	counts := map[ErrorKind]int{}
	for _, e := range r.Stats.Errors {
		counts[e.Kind]++
	}
	if r.Err != nil {
		counts[r.Err.Kind]++
	}
	return counts
}

// Summary holds one result per input image, in input order.
type Summary struct {
	Images []*ImageResult
}

// Failed returns the number of images that could not be processed.
func (s *Summary) Failed() int {
	failed := 0
	for _, image := range s.Images {
		if image.Err != nil {
			failed++
		}
	}
	return failed
}

// ErrorsByKind counts the errors of all images.
func (s *Summary) ErrorsByKind() map[ErrorKind]int {
	counts := map[ErrorKind]int{}
	for _, image := range s.Images {
		for kind, n := range image.ErrorsByKind() {
			counts[kind] += n
		}
	}
	return counts
}

// Orchestrator processes a batch of images with a bounded number of
// workers.
type Orchestrator struct {
	config Config
	layout Layout
	policy *Policy
}

// New creates an Orchestrator. Unset runtime fields of config are filled
// with the OS filesystem, the disk image provider and a logger writing
// to stderr.
func New(config Config) (*Orchestrator, error) {
	if config.Fs == nil {
		config.Fs = afero.NewOsFs()
	}
	if config.Provider == nil {
		config.Provider = diskimage.New()
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "", log.LstdFlags)
	}
	if config.Workers == 0 {
		config.Workers = runtime.NumCPU()
	}
	if config.Hash == "" {
		config.Hash = digest.Default
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.Archive || config.Index {
		if _, ok := config.Fs.(*afero.OsFs); !ok {
			return nil, ErrNeedsOsFs
		}
	}
	return &Orchestrator{
		config: config,
		layout: Layout{Root: config.OutputRoot},
		policy: config.Policy(),
	}, nil
}

// Run creates an Orchestrator for config and runs it.
func Run(config Config, imagePaths []string) (*Summary, error) {
	o, err := New(config)
	if err != nil {
		return nil, err
	}
	return o.Run(imagePaths)
}

// Run processes every image. Failures of single images are part of the
// summary, the returned error is only set if there is nothing to do.
func (o *Orchestrator) Run(imagePaths []string) (*Summary, error) {
	if len(imagePaths) == 0 {
		return nil, ErrNoImages
	}

	summary := &Summary{Images: make([]*ImageResult, len(imagePaths))}
	jobs := make(chan int, len(imagePaths))

	seen := map[string]string{}
	for i, imagePath := range imagePaths {
		name := ImageName(imagePath)
		if first, ok := seen[name]; ok {
			e := &Error{Kind: SetupError, Image: name, Err: errors.Errorf("image name already used by %s", first)}
			o.config.Logger.Print(e)
			summary.Images[i] = &ImageResult{Name: name, Path: imagePath, Err: e}
			continue
		}
		seen[name] = imagePath
		jobs <- i
	}
	close(jobs)

	workers := o.config.Workers
	if workers > len(imagePaths) {
		workers = len(imagePaths)
	}

	wg := new(sync.WaitGroup)
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for i := range jobs {
				summary.Images[i] = o.recoverImage(imagePaths[i])
			}
		}()
	}
	wg.Wait()

	return summary, nil
}

// recoverImage processes an image and turns a panic while doing so into a
// setup error of that image, so the other images are still processed.
func (o *Orchestrator) recoverImage(imagePath string) (result *ImageResult) {
	defer func() {
		if r := recover(); r != nil {
			name := ImageName(imagePath)
			e := &Error{Kind: SetupError, Image: name, Err: errors.Errorf("processing aborted: %v", r)}
			o.config.Logger.Print(e)
			result = &ImageResult{Name: name, Path: imagePath, Err: e}
		}
	}()
	return o.processImage(imagePath)
}

func (o *Orchestrator) imageLogger(name string) *log.Logger {
	parent := o.config.Logger
	return log.New(parent.Writer(), parent.Prefix()+"["+name+"] ", parent.Flags())
}

func (o *Orchestrator) processImage(imagePath string) *ImageResult {
	name := ImageName(imagePath)
	result := &ImageResult{Name: name, Path: imagePath}
	logger := o.imageLogger(name)

	fail := func(err error) *ImageResult {
		var e *Error
		if !errors.As(err, &e) {
			e = &Error{Kind: SetupError, Image: name, Err: err}
		}
		logger.Print(e.detail())
		result.Err = e
		return result
	}

	logger.Printf("processing %s", imagePath)
	session, err := OpenSession(o.config.Provider, imagePath, logger)
	if err != nil {
		return fail(err)
	}
	defer session.Close()
	result.Path = session.Path

	mounts, failures, err := session.Filesystems()
	result.Stats.Errors = append(result.Stats.Errors, failures...)
	if err != nil {
		return fail(err)
	}
	result.Filesystems = len(mounts)

	out, err := o.openOutput(name, logger)
	if err != nil {
		return fail(err)
	}
	defer out.close()

	for _, mount := range mounts {
		h, err := digest.New(o.config.Hash)
		if err != nil {
			return fail(err)
		}
		walker := NewWalker(mount.FS, name, mount.Partition, o.policy, out.copier, out.listing, out.indexer(), h, logger)

		var stats *Stats
		if o.config.Quick {
			stats = walker.Quick()
		} else {
			stats = walker.Walk()
		}
		result.Stats.add(stats)
	}

	for _, err := range out.close() {
		e := &Error{Kind: IOError, Image: name, Err: err}
		logger.Print(e.detail())
		result.Stats.Errors = append(result.Stats.Errors, e)
	}

	logger.Printf("done: %d directories, %d files, %d extracted, %d errors",
		result.Stats.Directories, result.Stats.Files, result.Stats.Extracted, len(result.Stats.Errors))
	return result
}

// imageOutput is where the results of one image go.
type imageOutput struct {
	copier  *Copier
	listing *manifest.Writer
	index   *store.FileIndex
	store   *store.Store
	archive *sqlitefs.FS
}

func (out *imageOutput) indexer() Indexer {
	if out.index == nil {
		return nil
	}
	return out.index
}

// close closes the index and the archive. Closing twice is a no-op.
func (out *imageOutput) close() []error {
	var errs []error
	if out.store != nil {
		if err := out.store.Close(); err != nil {
			errs = append(errs, errors.Wrap(err, "could not close index"))
		}
		out.store = nil
	}
	if out.archive != nil {
		if err := out.archive.Close(); err != nil {
			errs = append(errs, errors.Wrap(err, "could not close archive"))
		}
		out.archive = nil
	}
	return errs
}

func (o *Orchestrator) openOutput(name string, logger *log.Logger) (*imageOutput, error) {
	imageDir := o.layout.ImageDir(name)
	if err := o.config.Fs.MkdirAll(imageDir, 0755); err != nil && !os.IsExist(err) {
		return nil, &Error{Kind: SetupError, Image: name, Err: errors.Wrap(err, "could not create output directory")}
	}
	imageFs := afero.NewBasePathFs(o.config.Fs, imageDir)

	out := &imageOutput{copier: NewCopier(imageFs)}
	if o.config.Archive {
		archive, err := sqlitefs.New(o.layout.Archive(name))
		if err != nil {
			return nil, &Error{Kind: SetupError, Image: name, Err: errors.Wrap(err, "could not open archive")}
		}
		logger.Printf("writing extracted files to %s", o.layout.Archive(name))
		out.archive = archive
		out.copier = NewCopier(archive)
	}

	if o.config.Quick {
		return out, nil
	}

	out.listing = manifest.NewWriter(imageFs, "/"+ManifestName(name))

	if o.config.Index {
		s, err := store.OpenOrNew(o.layout.Index(name))
		if err != nil {
			out.close()
			return nil, &Error{Kind: SetupError, Image: name, Err: errors.Wrap(err, "could not open index")}
		}
		s.SetFS(out.copier.Fs())
		out.store = s
		out.index, err = store.NewFileIndex(s, o.config.Hash)
		if err != nil {
			out.close()
			return nil, &Error{Kind: SetupError, Image: name, Err: err}
		}
	}
	return out, nil
}

// Kinds returns the error kinds of counts in ascending order.
func Kinds(counts map[ErrorKind]int) []ErrorKind {
	kinds := make([]ErrorKind, 0, len(counts))
	for kind := range counts {
		kinds = append(kinds, kind)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}
