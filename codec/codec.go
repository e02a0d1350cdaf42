// Package codec selects the JSON implementation used for archive catalogs.
//
// A catalog stores the name of the codec that wrote it. Both built-in codecs
// emit plain JSON, so changing Default never breaks reading older archives.
package codec

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"

	gojson "github.com/goccy/go-json"
)

// ErrUnknown is returned by Lookup for names no codec is registered under.
var ErrUnknown = errors.New("codec: unknown codec")

// Codec encodes and decodes catalog documents. Implementations must be safe
// for concurrent use.
type Codec interface {
	Name() string
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

type stdCodec struct{}

func (stdCodec) Name() string                       { return "json" }
func (stdCodec) Marshal(v any) ([]byte, error)      { return json.MarshalIndent(v, "", "  ") }
func (stdCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

type goCodec struct{}

func (goCodec) Name() string                       { return "go-json" }
func (goCodec) Marshal(v any) ([]byte, error)      { return gojson.MarshalIndent(v, "", "  ") }
func (goCodec) Unmarshal(data []byte, v any) error { return gojson.Unmarshal(data, v) }

var (
	// JSON uses encoding/json.
	JSON Codec = stdCodec{}
	// GoJSON uses github.com/goccy/go-json.
	GoJSON Codec = goCodec{}

	// Default writes new catalogs.
	Default = GoJSON
)

var builtin = map[string]Codec{
	JSON.Name():   JSON,
	GoJSON.Name(): GoJSON,
}

// Lookup returns the codec registered under name.
func Lookup(name string) (Codec, error) {
	if c, ok := builtin[name]; ok {
		return c, nil
	}
	return nil, fmt.Errorf("%w %q", ErrUnknown, name)
}

// Names lists the built-in codec names in sorted order.
func Names() []string {
	return slices.Sorted(maps.Keys(builtin))
}
