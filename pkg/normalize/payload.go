// Package normalize turns a raw configuration snapshot into a tree of YAML
// files, one per configuration instance, grouped by workload and resource
// type.
package normalize

import (
	"encoding/json"
	"fmt"

	"github.com/keboola/go-utils/pkg/orderedmap"

	"github.com/anirudhbiyani/utcm-export/pkg/snapshot"
)

// ResourceBlock is one entry of the snapshot "resources" list.
type ResourceBlock struct {
	// Index is the position of the entry in the resources list.
	Index int

	// ResourceType is the dotted type, empty when absent or not a string.
	ResourceType string

	// Properties is nil when absent. Objects are *orderedmap.OrderedMap,
	// lists are []interface{}.
	Properties interface{}

	// Raw is the whole block.
	Raw *orderedmap.OrderedMap
}

// Payload is a parsed export document.
type Payload struct {
	Blocks []ResourceBlock

	// Invalid holds the indexes of resource entries that are not objects.
	Invalid []int
}

// Instance is one configuration object extracted from a block.
type Instance struct {
	Content       *orderedmap.OrderedMap
	SuggestedName string
}

// ParsePayload decodes a snapshot document, keeping the key order of
// every object. The top level must be an object with a "resources" list.
func ParsePayload(data []byte) (*Payload, error) {
	var probe interface{}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, snapshot.ErrMalformed("snapshot payload is not valid JSON").
			WithOperation("parse").
			WithCause(err)
	}
	if _, ok := probe.(map[string]interface{}); !ok {
		return nil, snapshot.ErrMalformed(fmt.Sprintf("expected snapshot payload to be a JSON object, got %s", jsonKind(probe))).
			WithOperation("parse")
	}

	top := orderedmap.New()
	if err := json.Unmarshal(data, top); err != nil {
		return nil, snapshot.ErrMalformed("snapshot payload could not be decoded").
			WithOperation("parse").
			WithCause(err)
	}

	rawResources, found := top.Get("resources")
	if !found {
		return nil, snapshot.ErrMalformed("snapshot JSON does not contain 'resources'").WithOperation("parse")
	}
	resources, ok := rawResources.([]interface{})
	if !ok {
		return nil, snapshot.ErrMalformed("snapshot JSON does not contain a list at 'resources'").WithOperation("parse")
	}

	payload := &Payload{}
	for i, entry := range resources {
		obj, ok := asObject(entry)
		if !ok {
			payload.Invalid = append(payload.Invalid, i)
			continue
		}
		block := ResourceBlock{Index: i, Raw: obj}
		if rt, ok := obj.Get("resourceType"); ok {
			block.ResourceType, _ = rt.(string)
		}
		block.Properties, _ = obj.Get("properties")
		payload.Blocks = append(payload.Blocks, block)
	}
	return payload, nil
}

// asObject accepts both forms a decoded nested object can take.
func asObject(v interface{}) (*orderedmap.OrderedMap, bool) {
	switch o := v.(type) {
	case *orderedmap.OrderedMap:
		return o, o != nil
	case orderedmap.OrderedMap:
		return &o, true
	default:
		return nil, false
	}
}

func jsonKind(v interface{}) string {
	switch v.(type) {
	case nil:
		return "null"
	case []interface{}:
		return "array"
	case string:
		return "string"
	case float64:
		return "number"
	case bool:
		return "boolean"
	default:
		return "object"
	}
}
