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
	"sort"
	"strings"
)

// Class is the extraction decision for a file.
type Class int

// Classes in order of precedence.
const (
	None Class = iota
	TargetFile
	TargetDirectory
	KeyFile
)

func (c Class) String() string {
	switch c {
	case TargetFile:
		return "target file"
	case TargetDirectory:
		return "target directory"
	case KeyFile:
		return "key file"
	default:
		return "none"
	}
}

// Policy decides which files are extracted. Matching is exact and case
// sensitive, patterns are not expanded. A Policy is read only after
// NewPolicy.
type Policy struct {
	targetDirectories map[string]bool
	targetFiles       map[string]bool
	keyFilenames      map[string]bool
}

// NewPolicy builds a policy from absolute directory paths, absolute file
// paths and plain filenames.
func NewPolicy(targetDirectories, targetFiles, keyFilenames []string) *Policy {
	p := &Policy{
		targetDirectories: map[string]bool{},
		targetFiles:       map[string]bool{},
		keyFilenames:      map[string]bool{},
	}
	for _, dir := range targetDirectories {
		p.targetDirectories[cleanPath(dir)] = true
	}
	for _, file := range targetFiles {
		p.targetFiles[cleanPath(file)] = true
	}
	for _, name := range keyFilenames {
		p.keyFilenames[name] = true
	}
	return p
}

// DefaultPolicy returns the registry hives, event logs, scheduler and
// prefetch locations of a Windows system volume.
func DefaultPolicy() *Policy {
	c := DefaultConfig()
	return NewPolicy(c.TargetDirectories, c.TargetFiles, c.KeyFilenames)
}

// Classify decides on the file name in directory dir.
func (p *Policy) Classify(dir, name string) Class {
	switch {
	case p.targetFiles[path.Join(cleanPath(dir), name)]:
		return TargetFile
	case p.targetDirectories[cleanPath(dir)]:
		return TargetDirectory
	case p.keyFilenames[name]:
		return KeyFile
	default:
		return None
	}
}

// IsTargetDirectory reports whether the content of dir is extracted.
func (p *Policy) IsTargetDirectory(dir string) bool {
	return p.targetDirectories[cleanPath(dir)]
}

// TargetDirectories returns the configured directories, sorted.
func (p *Policy) TargetDirectories() []string {
	return keys(p.targetDirectories)
}

// TargetFiles returns the configured files, sorted.
func (p *Policy) TargetFiles() []string {
	return keys(p.targetFiles)
}

func cleanPath(p string) string {
	return path.Clean("/" + strings.TrimLeft(p, "/"))
}

func keys(m map[string]bool) []string {
	var l []string
	for k := range m {
		l = append(l, k)
	}
	sort.Strings(l)
	return l
}
