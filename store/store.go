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

// Package store is the evidence index of a triage run: a sqlite database
// with one JSON element per file found in an image. Elements are kept in
// the elements table, per type views with one column per field are
// created on Close.
package store

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"crawshaw.io/sqlite"
	"github.com/fatih/structs"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

const indexVersion = 1
const elementaryApplicationID = 1701602669
const discriminator = "type"

// Store is the evidence index of a single image. Files referenced by
// export paths are looked up in the filesystem set with SetFS.
type Store struct {
	fs      afero.Fs
	cursor  *sqlite.Conn
	types   *typeMap
	schemas schemas
}

var ErrStoreExists = errors.New("store already exists")
var ErrStoreNotExists = errors.New("store does not exist")

// New creates a new Store.
func New(url string) (*Store, error) {
	return open(url, true)
}

// Open opens an existing Store.
func Open(url string) (*Store, error) {
	return open(url, false)
}

// OpenOrNew opens the Store at url or creates it if it does not exist.
func OpenOrNew(url string) (*Store, error) {
	if url != ":memory:" {
		if _, err := os.Stat(url); err == nil {
			return Open(url)
		}
	}
	return New(url)
}

func pragma(conn *sqlite.Conn, name string) (int64, error) {
	stmt, err := conn.Prepare("PRAGMA " + name)
	if err != nil {
		return 0, err
	}
	_, err = stmt.Step()
	if err != nil {
		return 0, err
	}
	i := stmt.GetInt64(name)
	return i, stmt.Finalize()
}

func setPragma(conn *sqlite.Conn, name string, i int64) error {
	stmt, err := conn.Prepare("PRAGMA " + name + " = " + fmt.Sprint(i))
	if err != nil {
		return err
	}
	_, err = stmt.Step()
	if err != nil {
		return err
	}
	return stmt.Finalize()
}

func open(url string, create bool) (*Store, error) { // nolint:gocyclo,funlen
	if url != ":memory:" {
		url = strings.TrimRight(url, "/")

		exists := true
		_, err := os.Stat(url)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, err
			}
			exists = false
		}

		if create && exists {
			return nil, ErrStoreExists
		}
		if !create && !exists {
			return nil, ErrStoreNotExists
		}

		if create {
			err = os.MkdirAll(filepath.Dir(url), 0750)
			if err != nil {
				return nil, err
			}
			log.Printf("Creating index %s", url)
		}
	}

	store := &Store{fs: afero.NewMemMapFs(), types: newTypeMap()}

	var err error
	store.cursor, err = sqlite.OpenConn(url, 0)
	if err != nil {
		return nil, err
	}

	if create {
		err = store.setup()
	} else {
		err = store.check()
	}
	if err != nil {
		store.cursor.Close() // nolint:errcheck
		return nil, err
	}

	err = store.setupTypes()
	if err != nil {
		store.cursor.Close() // nolint:errcheck
		return nil, err
	}

	store.schemas, err = loadSchemas()
	if err != nil {
		store.cursor.Close() // nolint:errcheck
		return nil, err
	}
	return store, nil
}

func (store *Store) setup() error {
	err := setPragma(store.cursor, "application_id", elementaryApplicationID)
	if err != nil {
		return err
	}

	err = setPragma(store.cursor, "user_version", indexVersion)
	if err != nil {
		return err
	}

	return store.exec("CREATE VIRTUAL TABLE `elements` " +
		"USING fts5(id UNINDEXED, json, insert_time UNINDEXED, tokenize=\"unicode61 tokenchars '/.'\")")
}

func (store *Store) check() error {
	applicationID, err := pragma(store.cursor, "application_id")
	if err != nil {
		return err
	}
	if applicationID != elementaryApplicationID {
		msg := "wrong file format (application_id is %d, requires %d)"
		return fmt.Errorf(msg, applicationID, elementaryApplicationID)
	}

	version, err := pragma(store.cursor, "user_version")
	if err != nil {
		return err
	}
	if version != indexVersion {
		msg := "wrong file format (user_version is %d, requires %d)"
		return fmt.Errorf(msg, version, indexVersion)
	}
	return nil
}

// SetFS sets the filesystem that holds the extracted files.
func (store *Store) SetFS(fs afero.Fs) {
	store.fs = fs
}

// Fs returns the filesystem that holds the extracted files.
func (store *Store) Fs() afero.Fs {
	return store.fs
}

/* ################################
#   API
################################ */

// Insert adds a single element. Elements without an id get a random id
// prefixed by their type.
func (store *Store) Insert(element JSONElement) (string, error) {
	nestedElement := map[string]interface{}{}
	err := json.Unmarshal(element, &nestedElement)
	if err != nil {
		return "", err
	}

	elementType, ok := nestedElement[discriminator].(string)
	if !ok || elementType == "" {
		return "", errors.New("element requires type")
	}
	id, ok := nestedElement["id"].(string)
	if !ok {
		id = elementType + "--" + uuid.New().String()
		nestedElement["id"] = id

		element, err = json.Marshal(nestedElement)
		if err != nil {
			return "", err
		}
	}

	valErr, err := store.schemas.validate(element)
	if err != nil {
		return "", errors.Wrap(err, "validation failed")
	}
	if len(valErr) > 0 {
		return "", fmt.Errorf("element could not be validated [%s]", strings.Join(valErr, ","))
	}

	flatElement := flatten(nestedElement)
	if _, ok := flatElement[elementType]; ok {
		return "", fmt.Errorf("element must not contain a field '%s'", elementType)
	}

	store.types.addAll(elementType, flatElement)

	query := "INSERT INTO `elements` (id, json, insert_time) VALUES ($id, $json, $time)"
	stmt, err := store.cursor.Prepare(query)
	if err != nil {
		return "", errors.Wrap(err, fmt.Sprintf("could not prepare statement %s", query))
	}
	stmt.SetText("$id", id)
	stmt.SetText("$json", string(element))
	stmt.SetText("$time", time.Now().UTC().Format("2006-01-02T15:04:05.000Z"))
	_, err = stmt.Step()
	if err != nil {
		return "", errors.Wrap(err, fmt.Sprint("could not exec statement", query))
	}

	return id, nil
}

// InsertStruct converts a Go struct to an element and inserts it.
func (store *Store) InsertStruct(element interface{}) (string, error) {
	m := structs.Map(element)
	b, err := json.Marshal(lower(m))
	if err != nil {
		return "", err
	}
	return store.Insert(b)
}

// Get retrieves a single element.
func (store *Store) Get(id string) (element JSONElement, err error) {
	stmt, err := store.cursor.Prepare("SELECT json FROM `elements` WHERE id=?")
	if err != nil {
		return nil, err
	}

	stmt.BindText(1, id)

	elements, err := store.rowsToElements(stmt)
	if err != nil {
		return nil, err
	}
	if len(elements) > 0 {
		return elements[0], nil
	}
	return nil, errors.New("element does not exist")
}

// Query executes a sql query.
func (store *Store) Query(query string) (elements []JSONElement, err error) {
	stmt, err := store.cursor.Prepare(query)
	if err != nil {
		return nil, err
	}

	return store.rowsToElements(stmt)
}

// Select retrieves all elements that match any of the conditions. Values
// are SQL LIKE patterns.
func (store *Store) Select(conditions []map[string]string) (elements []JSONElement, err error) {
	var ors []string
	var values []string
	for _, condition := range conditions {
		keys := make([]string, 0, len(condition))
		for key := range condition {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		var ands []string
		for _, key := range keys {
			ands = append(ands, fmt.Sprintf("json_extract(json, '$.%s') LIKE ?", key))
			values = append(values, condition[key])
		}
		if len(ands) > 0 {
			ors = append(ors, "("+strings.Join(ands, " AND ")+")")
		}
	}

	query := "SELECT json FROM \"elements\""
	if len(ors) > 0 {
		query += fmt.Sprintf(" WHERE %s", strings.Join(ors, " OR ")) // #nosec
	}

	stmt, err := store.cursor.Prepare(query) // #nosec
	if err != nil {
		return nil, err
	}
	for i, value := range values {
		stmt.BindText(i+1, value)
	}

	return store.rowsToElements(stmt)
}

// Search runs a full text search over all elements.
func (store *Store) Search(q string) (elements []JSONElement, err error) {
	stmt, err := store.cursor.Prepare("SELECT json FROM elements WHERE elements = $query")
	if err != nil {
		return nil, err
	}
	stmt.SetText("$query", q)
	return store.rowsToElements(stmt)
}

// All returns every element.
func (store *Store) All() (elements []JSONElement, err error) {
	return store.Select(nil)
}

// Close creates the views and closes the database.
func (store *Store) Close() error {
	if store.types.isChanged() {
		if err := store.createViews(); err != nil {
			log.Printf("could not create views: %s", err)
		}
	}

	return store.cursor.Close()
}

func (store *Store) createViews() error {
	for typeName, fields := range store.types.all() {
		err := store.exec(fmt.Sprintf("DROP VIEW IF EXISTS '%s'", typeName))
		if err != nil {
			return err
		}
		var columns []string
		for _, field := range fields {
			columns = append(columns, fmt.Sprintf("json_extract(json, '$.%s') as '%s'", field, field))
		}
		err = store.exec(
			fmt.Sprintf("CREATE VIEW '%s' AS SELECT %s FROM elements WHERE json_extract(json, '$.%s') = '%s'",
				typeName, strings.Join(columns, ", "), discriminator, typeName),
		)
		if err != nil {
			return err
		}
	}
	return nil
}

/* ################################
#   Intern
################################ */

func (store *Store) rowsToElements(stmt *sqlite.Stmt) (elements []JSONElement, err error) {
	elements = []JSONElement{}
	for {
		if hasRow, err := stmt.Step(); err != nil {
			return nil, err
		} else if !hasRow {
			break
		}
		elements = append(elements, JSONElement(stmt.GetText("json")))
	}
	return elements, stmt.Finalize()
}

func isElementTable(name string) bool {
	if strings.HasPrefix(name, "sqlite") || strings.HasPrefix(name, "_") {
		return false
	}
	if name == "elements" {
		return false
	}

	for _, suffix := range []string{"_data", "_idx", "_content", "_docsize", "_config"} {
		if strings.HasSuffix(name, suffix) {
			return false
		}
	}
	return true
}

// setupTypes reads the columns of existing views, so reopened stores
// keep their views complete.
func (store *Store) setupTypes() error {
	stmt, err := store.cursor.Prepare("SELECT name FROM sqlite_master WHERE type = 'view'")
	if err != nil {
		return err
	}

	var names []string
	for {
		if hasRow, err := stmt.Step(); err != nil {
			return err
		} else if !hasRow {
			break
		}

		name := stmt.GetText("name")
		if isElementTable(name) {
			names = append(names, name)
		}
	}
	if err := stmt.Finalize(); err != nil {
		return err
	}

	for _, name := range names {
		pragmaStmt, err := store.cursor.Prepare(fmt.Sprintf("PRAGMA table_info (\"%s\")", name))
		if err != nil {
			return err
		}

		for {
			if pragmaHasRow, err := pragmaStmt.Step(); err != nil {
				return err
			} else if !pragmaHasRow {
				break
			}
			store.types.add(name, pragmaStmt.GetText("name"))
		}
		err = pragmaStmt.Finalize()
		if err != nil {
			return err
		}
	}
	store.types.changed = false
	return nil
}

func (store *Store) exec(query string) error {
	stmt, err := store.cursor.Prepare(query)
	if err != nil {
		return err
	}

	_, err = stmt.Step()
	if err != nil {
		return err
	}

	return stmt.Finalize()
}
