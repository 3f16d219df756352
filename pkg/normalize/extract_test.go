package normalize

import (
	"testing"

	"github.com/keboola/go-utils/pkg/orderedmap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseBlock(t *testing.T, data string) ResourceBlock {
	t.Helper()
	payload, err := ParsePayload([]byte(`{"resources":[` + data + `]}`))
	require.NoError(t, err)
	require.Len(t, payload.Blocks, 1)
	return payload.Blocks[0]
}

func names(instances []Instance) []string {
	out := make([]string, 0, len(instances))
	for i, inst := range instances {
		out = append(out, ResolveName(inst.Content, inst.SuggestedName, i+1))
	}
	return out
}

func TestExtractInstancesStrategies(t *testing.T) {
	cases := []struct {
		name     string
		block    string
		strategy string
		want     []string
	}{
		{
			name:     "property list",
			block:    `{"resourceType":"microsoft.entra.conditionalaccesspolicy","properties":[{"id":"1","displayName":"PolicyA"},"junk",{"id":"2","displayName":"PolicyB"}]}`,
			strategy: "property_list",
			want:     []string{"PolicyA", "PolicyB"},
		},
		{
			name:     "property list without objects",
			block:    `{"resourceType":"a.b.c","properties":[1,2,3]}`,
			strategy: "property_list",
			want:     []string{},
		},
		{
			name:     "instance like",
			block:    `{"resourceType":"a.b.c","properties":{"name":"Single","settings":{"x":1}}}`,
			strategy: "instance_like",
			want:     []string{"Single"},
		},
		{
			name:     "collection key",
			block:    `{"resourceType":"a.b.c","properties":{"items":[],"value":[{"id":"v1"},{"id":"v2"}]}}`,
			strategy: "collection_key",
			want:     []string{"v1", "v2"},
		},
		{
			name:     "named object entries",
			block:    `{"resourceType":"a.b.c","properties":{"region1":{"enabled":true},"region2":{"enabled":false},"count":2}}`,
			strategy: "named_entries",
			want:     []string{"region1", "region2"},
		},
		{
			name:     "named list entries",
			block:    `{"resourceType":"a.b.c","properties":{"rules":[{"a":1},{"a":2}],"mixed":[{"a":1},"x"]}}`,
			strategy: "named_entries",
			want:     []string{"rules_1", "rules_2"},
		},
		{
			name:     "whole properties",
			block:    `{"resourceType":"a.b.c","properties":{"enabled":true,"mode":"strict"}}`,
			strategy: "whole_properties",
			want:     []string{"item_001"},
		},
		{
			name:     "whole block",
			block:    `{"resourceType":"a.b.c","properties":"opaque"}`,
			strategy: "whole_block",
			want:     []string{"item_001"},
		},
		{
			name:     "missing properties",
			block:    `{"resourceType":"a.b.c","displayName":"FromBlock"}`,
			strategy: "whole_block",
			want:     []string{"FromBlock"},
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			instances, strategy := ExtractInstances(parseBlock(t, c.block))
			assert.Equal(t, c.strategy, strategy)
			assert.Equal(t, c.want, names(instances))
		})
	}
}

func TestExtractInstancesKeepsKeyOrder(t *testing.T) {
	block := parseBlock(t, `{"resourceType":"a.b.c","properties":{"zeta":{"k":1},"alpha":{"k":2},"mid":{"k":3}}}`)

	instances, _ := ExtractInstances(block)
	assert.Equal(t, []string{"zeta", "alpha", "mid"}, names(instances))
}

func TestResolveName(t *testing.T) {
	obj := func(pairs ...orderedmap.Pair) *orderedmap.OrderedMap {
		return orderedmap.FromPairs(pairs)
	}

	assert.Equal(t, "Display", ResolveName(obj(
		orderedmap.Pair{Key: "id", Value: "abc"},
		orderedmap.Pair{Key: "displayName", Value: "Display"},
	), "suggested", 1))
	assert.Equal(t, "abc", ResolveName(obj(
		orderedmap.Pair{Key: "displayName", Value: "   "},
		orderedmap.Pair{Key: "id", Value: "abc"},
	), "", 1))
	assert.Equal(t, "42", ResolveName(obj(orderedmap.Pair{Key: "Id", Value: float64(42)}), "", 1))
	assert.Equal(t, "suggested", ResolveName(obj(orderedmap.Pair{Key: "name", Value: true}), "suggested", 1))
	assert.Equal(t, "item_007", ResolveName(obj(), " ", 7))
	assert.Equal(t, "item_1234", ResolveName(nil, "", 1234))
}

func TestFolderNames(t *testing.T) {
	cases := []struct {
		resourceType string
		workload     string
		folder       string
	}{
		{"microsoft.entra.conditionalaccesspolicy", "entra", "conditionalaccesspolicy"},
		{"Microsoft.Exchange.TransportRule", "exchange", "transportrule"},
		{"microsoft.intune.device.configuration", "intune", "configuration"},
		{"vendor.workload", "workload", "workload"},
		{"single", "unknown", "unknown"},
		{"", "unknown", "unknown"},
		{"a..b", "unnamed", "b"},
		{"a.b.", "b", "unnamed"},
		{"a. .b", "unnamed", "b"},
		{"a.b c.d/e", "b_c", "d_e"},
	}
	for _, c := range cases {
		workload, folder := FolderNames(c.resourceType)
		assert.Equal(t, c.workload, workload, c.resourceType)
		assert.Equal(t, c.folder, folder, c.resourceType)
	}
}

func TestLooksLikeInstance(t *testing.T) {
	assert.True(t, LooksLikeInstance(orderedmap.FromPairs([]orderedmap.Pair{{Key: "ID", Value: "x"}})))
	assert.False(t, LooksLikeInstance(orderedmap.FromPairs([]orderedmap.Pair{{Key: "identifier", Value: "x"}})))
}
