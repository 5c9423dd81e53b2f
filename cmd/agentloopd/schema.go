package main

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
	"github.com/kadirpekel/agentloop/config"
)

// SchemaCmd prints the JSON Schema for config.Config, grounded on the
// teacher's cmd/hector/schema.go SchemaCmd (same reflector settings: no
// $ref indirection, additionalProperties disallowed).
type SchemaCmd struct {
	Compact bool `short:"c" help:"Compact JSON output (no indentation)."`
}

func (c *SchemaCmd) Run(cli *CLI) error {
	reflector := &jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	schema := reflector.Reflect(&config.Config{})
	schema.Title = "agentloopd configuration schema"

	var (
		b   []byte
		err error
	)
	if c.Compact {
		b, err = json.Marshal(schema)
	} else {
		b, err = json.MarshalIndent(schema, "", "  ")
	}
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}
