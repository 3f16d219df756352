package normalize

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/keboola/go-utils/pkg/orderedmap"

	"github.com/anirudhbiyani/utcm-export/pkg/sanitize"
)

// NameKeys are the identity keys, in priority order.
var NameKeys = []string{"displayName", "name", "id", "DisplayName", "Name", "Id", "ID"}

// CollectionKeys name lists of instances nested under properties.
var CollectionKeys = []string{"items", "value", "values", "instances", "resources"}

// strategy returns matched=false when it does not apply to the block.
type strategy struct {
	name    string
	extract func(block ResourceBlock) (instances []Instance, matched bool)
}

// strategies are tried in order; the first match wins.
var strategies = []strategy{
	{name: "property_list", extract: extractPropertyList},
	{name: "instance_like", extract: extractInstanceLike},
	{name: "collection_key", extract: extractCollection},
	{name: "named_entries", extract: extractNamedEntries},
	{name: "whole_properties", extract: extractWholeProperties},
	{name: "whole_block", extract: extractWholeBlock},
}

// ExtractInstances splits a block into instances and reports which
// strategy produced them. A property list without objects matches and
// yields no instances.
func ExtractInstances(block ResourceBlock) ([]Instance, string) {
	for _, s := range strategies {
		if instances, ok := s.extract(block); ok {
			return instances, s.name
		}
	}
	return nil, ""
}

// LooksLikeInstance reports whether obj carries an identity key.
func LooksLikeInstance(obj *orderedmap.OrderedMap) bool {
	for _, key := range NameKeys {
		if _, ok := obj.Get(key); ok {
			return true
		}
	}
	return false
}

func objectsOf(list []interface{}) []Instance {
	var out []Instance
	for _, item := range list {
		if obj, ok := asObject(item); ok {
			out = append(out, Instance{Content: obj})
		}
	}
	return out
}

func extractPropertyList(block ResourceBlock) ([]Instance, bool) {
	list, ok := block.Properties.([]interface{})
	if !ok {
		return nil, false
	}
	return objectsOf(list), true
}

func extractInstanceLike(block ResourceBlock) ([]Instance, bool) {
	props, ok := asObject(block.Properties)
	if !ok || !LooksLikeInstance(props) {
		return nil, false
	}
	return []Instance{{Content: props}}, true
}

func extractCollection(block ResourceBlock) ([]Instance, bool) {
	props, ok := asObject(block.Properties)
	if !ok {
		return nil, false
	}
	for _, key := range CollectionKeys {
		value, _ := props.Get(key)
		list, ok := value.([]interface{})
		if !ok {
			continue
		}
		if instances := objectsOf(list); len(instances) > 0 {
			return instances, true
		}
	}
	return nil, false
}

func extractNamedEntries(block ResourceBlock) ([]Instance, bool) {
	props, ok := asObject(block.Properties)
	if !ok {
		return nil, false
	}

	var out []Instance
	for _, key := range props.Keys() {
		value, _ := props.Get(key)
		if obj, ok := asObject(value); ok {
			out = append(out, Instance{Content: obj, SuggestedName: key})
			continue
		}
		list, ok := value.([]interface{})
		if !ok || !allObjects(list) {
			continue
		}
		for i, item := range list {
			obj, _ := asObject(item)
			out = append(out, Instance{
				Content:       obj,
				SuggestedName: fmt.Sprintf("%s_%d", key, i+1),
			})
		}
	}
	return out, len(out) > 0
}

func allObjects(list []interface{}) bool {
	for _, item := range list {
		if _, ok := asObject(item); !ok {
			return false
		}
	}
	return true
}

func extractWholeProperties(block ResourceBlock) ([]Instance, bool) {
	props, ok := asObject(block.Properties)
	if !ok {
		return nil, false
	}
	return []Instance{{Content: props}}, true
}

func extractWholeBlock(block ResourceBlock) ([]Instance, bool) {
	if block.Raw == nil {
		return nil, false
	}
	return []Instance{{Content: block.Raw}}, true
}

// ResolveName picks a file name for an instance: the first identity key
// with a non-blank string or numeric value, then the suggested name, then
// item_<index> with index zero-padded to three digits.
func ResolveName(content *orderedmap.OrderedMap, suggested string, index int) string {
	if content != nil {
		for _, key := range NameKeys {
			value, _ := content.Get(key)
			if name := scalarName(value); name != "" {
				return name
			}
		}
	}
	if strings.TrimSpace(suggested) != "" {
		return suggested
	}
	return fmt.Sprintf("item_%03d", index)
}

func scalarName(value interface{}) string {
	switch v := value.(type) {
	case string:
		if strings.TrimSpace(v) != "" {
			return v
		}
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return ""
}

// FolderNames derives the workload and resource folder from a resource
// type: the second and last dot segments, lower-cased and sanitized.
// Types with fewer than two segments map to "unknown" for both. An empty
// segment sanitizes to sanitize.Fallback.
func FolderNames(resourceType string) (workload, folder string) {
	parts := strings.Split(strings.ToLower(resourceType), ".")
	if len(parts) < 2 {
		return unknownFolder, unknownFolder
	}
	return sanitize.Filename(parts[1]), sanitize.Filename(parts[len(parts)-1])
}

const unknownFolder = "unknown"
