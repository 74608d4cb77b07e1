package protocol

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"path"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.schema.json
var schemaFS embed.FS

const schemaBase = "https://blockroom.ai/schemas/"

// Validator checks frames against the embedded JSON schemas before they are
// decoded.
type Validator struct {
	inbound  map[string]*jsonschema.Schema
	outbound *jsonschema.Schema
}

var inboundSchemas = map[string]string{
	TypeWelcome:     "welcome.schema.json",
	TypeInit:        "init.schema.json",
	TypeGameState:   "game_state.schema.json",
	TypeBatchUpdate: "batch_update.schema.json",
	TypeGameOver:    "game_over.schema.json",
	TypeGameStart:   "game_start.schema.json",
	TypeError:       "error.schema.json",
}

func NewValidator() (*Validator, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	files, err := fs.Glob(schemaFS, "schemas/*.schema.json")
	if err != nil {
		return nil, err
	}
	for _, f := range files {
		raw, err := schemaFS.ReadFile(f)
		if err != nil {
			return nil, err
		}
		if err := c.AddResource(schemaBase+path.Base(f), bytes.NewReader(raw)); err != nil {
			return nil, fmt.Errorf("schema %s: %w", f, err)
		}
	}
	v := &Validator{inbound: make(map[string]*jsonschema.Schema, len(inboundSchemas))}
	for typ, name := range inboundSchemas {
		s, err := c.Compile(schemaBase + name)
		if err != nil {
			return nil, fmt.Errorf("compile %s: %w", name, err)
		}
		v.inbound[typ] = s
	}
	if v.outbound, err = c.Compile(schemaBase + "outbound.schema.json"); err != nil {
		return nil, fmt.Errorf("compile outbound.schema.json: %w", err)
	}
	return v, nil
}

// Inbound validates a server frame and returns its type. The error wraps
// ErrUnknownType for types without a schema.
func (v *Validator) Inbound(raw []byte) (string, error) {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return "", err
	}
	obj, ok := doc.(map[string]any)
	if !ok {
		return "", fmt.Errorf("frame is not an object")
	}
	typ, _ := obj["type"].(string)
	s, ok := v.inbound[typ]
	if !ok {
		return typ, fmt.Errorf("%w: %q", ErrUnknownType, typ)
	}
	if err := s.Validate(doc); err != nil {
		return typ, err
	}
	return typ, nil
}

// Outbound validates a message the client is about to send.
func (v *Validator) Outbound(msg any) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return err
	}
	return v.outbound.Validate(doc)
}
