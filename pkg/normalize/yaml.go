package normalize

import (
	"bytes"
	"math"

	"github.com/keboola/go-utils/pkg/orderedmap"
	"gopkg.in/yaml.v3"
)

// maxExactInt is the largest integer a float64 holds exactly.
const maxExactInt = 1 << 53

// EncodeYAML serializes an instance with sorted keys and a 2-space indent.
// Integral JSON numbers are written as integers.
func EncodeYAML(content *orderedmap.OrderedMap) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(plain(content)); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// plain converts ordered maps into plain maps so the encoder sorts keys.
func plain(value interface{}) interface{} {
	switch v := value.(type) {
	case *orderedmap.OrderedMap, orderedmap.OrderedMap:
		obj, ok := asObject(v)
		if !ok {
			return map[string]interface{}{}
		}
		out := make(map[string]interface{}, obj.Len())
		for _, key := range obj.Keys() {
			item, _ := obj.Get(key)
			out[key] = plain(item)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, item := range v {
			out[i] = plain(item)
		}
		return out
	case float64:
		if v == math.Trunc(v) && math.Abs(v) <= maxExactInt {
			return int64(v)
		}
		return v
	default:
		return v
	}
}
