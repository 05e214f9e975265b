package store

import (
	"context"
	_ "embed" // file schema
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
	"github.com/qri-io/jsonschema"
	"github.com/tidwall/gjson"
)

//go:embed schema/file.json
var fileSchema []byte

// schemas holds a JSON schema per element type. Elements of other types
// are not validated.
type schemas map[string]*jsonschema.Schema

func loadSchemas() (schemas, error) {
	schema := &jsonschema.Schema{}
	if err := json.Unmarshal(fileSchema, schema); err != nil {
		return nil, errors.Wrap(err, "could not unmarshal file schema")
	}
	return schemas{"file": schema}, nil
}

func (s schemas) validate(element JSONElement) (flaws []string, err error) {
	elementType := gjson.GetBytes(element, discriminator)
	if !elementType.Exists() {
		return []string{"element needs to have a type"}, nil
	}

	schema, ok := s[elementType.String()]
	if !ok {
		return nil, nil
	}

	errs, err := schema.ValidateBytes(context.Background(), element)
	if err != nil {
		return nil, err
	}
	for _, verr := range errs {
		flaws = append(flaws, fmt.Sprintf("failed to validate element: %s", verr.Error()))
	}
	return flaws, nil
}
