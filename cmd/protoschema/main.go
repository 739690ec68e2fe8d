// Command protoschema emits a JSON Schema document for every message on the
// wire protocol, for client authors and contract tests in other repos.
package main

import (
	"encoding/json"
	"flag"
	"log"
	"os"
	"path/filepath"
	"reflect"

	"github.com/invopop/jsonschema"

	"intersection/server"
)

func main() {
	var outPath string
	flag.StringVar(&outPath, "out", "", "output path for the JSON schema")
	flag.Parse()

	if outPath == "" {
		log.Fatal("protoschema: missing -out path")
	}

	schema := buildSchema()

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		log.Fatalf("protoschema: marshal schema: %v", err)
	}
	data = append(data, '\n')

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		log.Fatalf("protoschema: create output dir: %v", err)
	}
	if err := os.WriteFile(outPath, data, 0o644); err != nil {
		log.Fatalf("protoschema: write schema: %v", err)
	}
}

// messageTypes lists every struct that crosses the websocket, keyed by the
// definition name used in the emitted schema.
var messageTypes = map[string]reflect.Type{
	"Welcome":      reflect.TypeOf(server.WelcomeMessage{}),
	"State":        reflect.TypeOf(server.StateMessage{}),
	"Leaderboard":  reflect.TypeOf(server.LeaderboardMessage{}),
	"AudioSelf":    reflect.TypeOf(server.AudioSelfMessage{}),
	"AudioCluster": reflect.TypeOf(server.AudioClusterMessage{}),
	"AudioGlobal":  reflect.TypeOf(server.AudioGlobalMessage{}),
	"NoiseSlots":   reflect.TypeOf(server.NoiseSlotsMessage{}),
	"HeartbeatAck": reflect.TypeOf(server.HeartbeatAckMessage{}),
	"Param":        reflect.TypeOf(server.ParamMessage{}),
	"Client":       reflect.TypeOf(server.ClientMessage{}),
}

func buildSchema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		DoNotReference:             true,
	}

	root := &jsonschema.Schema{
		Title:       "intersection wire protocol",
		Description: "Every message exchanged over the duplex channel, in both directions.",
		Definitions: jsonschema.Definitions{},
	}
	for name, typ := range messageTypes {
		s := reflector.ReflectFromType(typ)
		s.Version = ""
		root.Definitions[name] = s
	}
	return root
}
