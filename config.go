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
	"io/ioutil"
	"log"
	"runtime"

	"github.com/imdario/mergo"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/forensicanalysis/triage/digest"
	"github.com/forensicanalysis/triage/provider"
)

// Config controls a triage run. It is created once and passed to the
// orchestrator, sessions and walkers.
type Config struct {
	// OutputRoot is the directory that receives one subdirectory per image.
	OutputRoot string `yaml:"-"`
	// Quick only extracts target directories and target files, no manifest
	// is written and no full walk is done.
	Quick bool `yaml:"-"`

	TargetDirectories []string `yaml:"target_directories"`
	TargetFiles       []string `yaml:"target_files"`
	KeyFilenames      []string `yaml:"key_filenames"`

	// Workers is the number of images processed in parallel.
	Workers int `yaml:"workers"`
	// Hash is the digest algorithm of the manifest.
	Hash string `yaml:"hash"`
	// Archive writes extracted files into a sqlite archive per image.
	Archive bool `yaml:"archive"`
	// Index records every file in an evidence index per image.
	Index bool `yaml:"index"`

	Fs       afero.Fs          `yaml:"-"`
	Provider provider.Provider `yaml:"-"`
	Logger   *log.Logger       `yaml:"-"`
}

// DefaultConfig returns the Windows artifact locations and run settings
// used when nothing else is configured.
func DefaultConfig() Config {
	return Config{
		TargetDirectories: []string{
			"/Windows/System32/config",
			"/Windows/Tasks",
			"/Windows/System32/winevt",
			"/Windows/System32/Drivers/etc",
			"/Windows/Prefetch",
		},
		TargetFiles: []string{
			"/$MFT",
			"/pagefile.sys",
			"/hiberfil.sys",
			"/$Logfile",
		},
		KeyFilenames: []string{
			"NTUSER.DAT",
			"usrclass.dat",
			"Thumbs.db",
		},
		Workers: runtime.NumCPU(),
		Hash:    digest.Default,
	}
}

// LoadConfig reads a YAML config file. Missing keys are taken from
// DefaultConfig.
func LoadConfig(name string) (Config, error) {
	b, err := ioutil.ReadFile(name) // #nosec
	if err != nil {
		return Config{}, errors.Wrap(err, "could not read config")
	}
	return ParseConfig(b)
}

// lists are the list settings a config file sets. A list given as [] stays
// empty, only missing or null lists are taken from DefaultConfig.
type lists struct {
	TargetDirectories *[]string `yaml:"target_directories"`
	TargetFiles       *[]string `yaml:"target_files"`
	KeyFilenames      *[]string `yaml:"key_filenames"`
}

// ParseConfig parses YAML config data. Missing keys are taken from
// DefaultConfig.
func ParseConfig(b []byte) (Config, error) {
	var config Config
	if err := yaml.Unmarshal(b, &config); err != nil {
		return Config{}, errors.Wrap(err, "could not parse config")
	}
	var set lists
	if err := yaml.Unmarshal(b, &set); err != nil {
		return Config{}, errors.Wrap(err, "could not parse config")
	}
	if err := mergo.Merge(&config, DefaultConfig()); err != nil {
		return Config{}, err
	}
	for _, list := range []struct{ set, dst *[]string }{
		{set.TargetDirectories, &config.TargetDirectories},
		{set.TargetFiles, &config.TargetFiles},
		{set.KeyFilenames, &config.KeyFilenames},
	} {
		if list.set != nil && len(*list.set) == 0 {
			*list.dst = []string{}
		}
	}
	return config, config.Validate()
}

// Validate checks the settings that can be wrong in a config file.
func (c Config) Validate() error {
	if c.Workers < 0 {
		return errors.Errorf("invalid number of workers: %d", c.Workers)
	}
	if c.Hash != "" {
		if _, err := digest.New(c.Hash); err != nil {
			return err
		}
	}
	return nil
}

// Policy builds the extraction policy of the config.
func (c Config) Policy() *Policy {
	return NewPolicy(c.TargetDirectories, c.TargetFiles, c.KeyFilenames)
}
