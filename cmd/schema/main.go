// Command schema emits the JSON schema of the wire protocol, for
// documentation and for client implementations in other languages.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/invopop/jsonschema"

	"driftisle/server/internal/net/proto"
)

// wireProtocol collects every message kind under its channel name.
type wireProtocol struct {
	Heartbeat proto.Heartbeat `json:"heartbeat"`
	Chat      proto.Chat      `json:"chat"`
	Move      proto.Move      `json:"move"`
	EntEvent  proto.EntEvent  `json:"entEvent"`
	WorldJoin proto.WorldJoin `json:"worldJoin"`
}

func main() {
	var outPath string
	flag.StringVar(&outPath, "out", "", "path to write the schema; stdout when empty")
	flag.Parse()

	schema := buildSchema()
	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "marshal schema: %v\n", err)
		os.Exit(1)
	}
	data = append(data, '\n')

	if outPath == "" {
		os.Stdout.Write(data)
		return
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "create output dir: %v\n", err)
		os.Exit(1)
	}
	if err := os.WriteFile(outPath, data, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "write schema: %v\n", err)
		os.Exit(1)
	}
}

func buildSchema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: true,
	}
	schema := reflector.Reflect(new(wireProtocol))
	schema.Title = "Driftisle Wire Protocol"
	schema.Description = fmt.Sprintf("Message kinds exchanged over the UDP channel multiplexer, protocol version %d.", proto.Version)
	return schema
}
