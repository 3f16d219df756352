// Package catalog loads the list of resource types a snapshot job exports.
//
// The catalog is a JSON document with a "resources" list of strings,
// produced from the service documentation ahead of time.
package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/afero"

	"github.com/anirudhbiyani/utcm-export/pkg/snapshot"
)

// DefaultPath is the catalog file used when none is given.
const DefaultPath = "resources.json"

// Load reads the catalog at path and returns its trimmed, deduplicated and
// sorted resource ids.
func Load(fs afero.Fs, path string) ([]string, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, snapshot.ErrConfig(fmt.Sprintf("resource catalog not found: %s; build the catalog first", path)).
				WithOperation("load_catalog").
				WithDetail("path", path)
		}
		return nil, snapshot.ErrFilesystem("failed to read resource catalog").
			WithOperation("load_catalog").
			WithCause(err).
			WithDetail("path", path)
	}

	var doc struct {
		Resources json.RawMessage `json:"resources"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return nil, invalidFormat(path)
		}
		return nil, snapshot.ErrConfig(fmt.Sprintf("resource catalog is not valid JSON: %s", path)).
			WithOperation("load_catalog").
			WithCause(err).
			WithDetail("path", path)
	}

	var resources []string
	if len(doc.Resources) == 0 || json.Unmarshal(doc.Resources, &resources) != nil || resources == nil {
		return nil, invalidFormat(path)
	}

	cleaned := Normalize(resources)
	if len(cleaned) == 0 {
		return nil, snapshot.ErrConfig(fmt.Sprintf("resource catalog contains no resources: %s", path)).
			WithOperation("load_catalog").
			WithDetail("path", path)
	}
	return cleaned, nil
}

func invalidFormat(path string) error {
	return snapshot.ErrConfig(fmt.Sprintf("resource catalog has invalid 'resources' format in %s", path)).
		WithOperation("load_catalog").
		WithDetail("path", path)
}

// Normalize trims ids, drops blanks and duplicates, and sorts the rest.
// Comma separated entries are split.
func Normalize(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		for _, part := range strings.Split(id, ",") {
			part = strings.TrimSpace(part)
			if part == "" || seen[part] {
				continue
			}
			seen[part] = true
			out = append(out, part)
		}
	}
	sort.Strings(out)
	return out
}
