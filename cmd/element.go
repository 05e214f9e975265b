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
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/forensicanalysis/triage/store"
)

// Element is the triage element commandline subcommand
func Element() *cobra.Command {
	elementCommand := &cobra.Command{
		Use:   "element",
		Short: "Query the index of an image",
	}
	elementCommand.AddCommand(getCommand(), selectCommand(), searchCommand(), allCommand())
	return elementCommand
}

func withStore(name string, fn func(s *store.Store) ([]store.JSONElement, error), out io.Writer) error {
	s, err := store.Open(name)
	if err != nil {
		return err
	}
	defer s.Close()
	elements, err := fn(s)
	if err != nil {
		return err
	}
	return printElements(out, elements)
}

func getCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id> <item.db>",
		Short: "Retrieve a single element",
		Args:  cobra.ExactArgs(2), //nolint:gomnd
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := store.Open(args[1])
			if err != nil {
				return err
			}
			defer s.Close()
			element, err := s.Get(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\n", element)
			return nil
		},
	}
}

func selectCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "select <key=pattern>... <item.db>",
		Short: "Retrieve all elements whose fields match SQL LIKE patterns, e.g. origin.path=%/config/%",
		Args:  cobra.MinimumNArgs(2), //nolint:gomnd
		RunE: func(cmd *cobra.Command, args []string) error {
			condition, err := parseConditions(args[:len(args)-1])
			if err != nil {
				return err
			}
			return withStore(args[len(args)-1], func(s *store.Store) ([]store.JSONElement, error) {
				return s.Select([]map[string]string{condition})
			}, cmd.OutOrStdout())
		},
	}
}

func searchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "search <query> <item.db>",
		Short: "Full text search over all elements",
		Args:  cobra.ExactArgs(2), //nolint:gomnd
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(args[1], func(s *store.Store) ([]store.JSONElement, error) {
				return s.Search(args[0])
			}, cmd.OutOrStdout())
		},
	}
}

func allCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "all <item.db>",
		Short: "Retrieve all elements",
		Args:  cobra.ExactArgs(1), //nolint:gomnd
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(args[0], func(s *store.Store) ([]store.JSONElement, error) {
				return s.All()
			}, cmd.OutOrStdout())
		},
	}
}

func parseConditions(args []string) (map[string]string, error) {
	condition := map[string]string{}
	for _, arg := range args {
		parts := strings.SplitN(arg, "=", 2) //nolint:gomnd
		if len(parts) != 2 || parts[0] == "" {
			return nil, errors.Errorf("invalid condition %q, expected key=pattern", arg)
		}
		condition[parts[0]] = parts[1]
	}
	return condition, nil
}

func printElements(out io.Writer, elements []store.JSONElement) error {
	raw := make([]json.RawMessage, len(elements))
	for i, element := range elements {
		raw[i] = json.RawMessage(element)
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "%s\n", b)
	return err
}
