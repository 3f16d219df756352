package normalize

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/anirudhbiyani/utcm-export/pkg/snapshot"
)

const testRoot = "/work/tenant_state"

func mustParse(t *testing.T, data string) *Payload {
	t.Helper()
	payload, err := ParsePayload([]byte(data))
	require.NoError(t, err)
	return payload
}

func readFile(t *testing.T, fs afero.Fs, path string) string {
	t.Helper()
	data, err := afero.ReadFile(fs, path)
	require.NoError(t, err)
	return string(data)
}

func writeFile(t *testing.T, fs afero.Fs, path, content string) {
	t.Helper()
	require.NoError(t, fs.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, afero.WriteFile(fs, path, []byte(content), 0o644))
}

// listFiles returns every regular file under root, relative and sorted.
func listFiles(t *testing.T, fs afero.Fs, root string) []string {
	t.Helper()
	var files []string
	require.NoError(t, afero.Walk(fs, root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			rel, err := filepath.Rel(root, path)
			if err != nil {
				return err
			}
			files = append(files, filepath.ToSlash(rel))
		}
		return nil
	}))
	sort.Strings(files)
	return files
}

func TestNormalizeConditionalAccessPolicies(t *testing.T) {
	fs := afero.NewMemMapFs()
	payload := mustParse(t, `{"resources":[{"resourceType":"microsoft.entra.conditionalaccesspolicy","properties":[{"id":"1","displayName":"PolicyA"},{"id":"2","displayName":"PolicyB"}]}]}`)

	result, err := New(fs).Normalize(payload, testRoot)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"entra/conditionalaccesspolicy/PolicyA.yaml",
		"entra/conditionalaccesspolicy/PolicyB.yaml",
	}, listFiles(t, fs, testRoot))
	assert.Equal(t, []string{
		filepath.Join(testRoot, "entra", "conditionalaccesspolicy", "PolicyA.yaml"),
		filepath.Join(testRoot, "entra", "conditionalaccesspolicy", "PolicyB.yaml"),
	}, result.Written)

	content := readFile(t, fs, filepath.Join(testRoot, "entra", "conditionalaccesspolicy", "PolicyA.yaml"))
	assert.Contains(t, content, "displayName: PolicyA\n")
	assert.Contains(t, content, "id: \"1\"\n")
	assert.Less(t, strings.Index(content, "displayName"), strings.Index(content, "id:"))
}

func TestNormalizeNamedEntries(t *testing.T) {
	fs := afero.NewMemMapFs()
	payload := mustParse(t, `{"resources":[{"resourceType":"microsoft.exchange.accepteddomain","properties":{"region1":{"enabled":true},"region2":{"enabled":false}}}]}`)

	_, err := New(fs).Normalize(payload, testRoot)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"exchange/accepteddomain/region1.yaml",
		"exchange/accepteddomain/region2.yaml",
	}, listFiles(t, fs, testRoot))
	assert.Equal(t, "enabled: false\n", readFile(t, fs, filepath.Join(testRoot, "exchange", "accepteddomain", "region2.yaml")))
}

func TestNormalizeDeduplicatesWithinRun(t *testing.T) {
	fs := afero.NewMemMapFs()
	payload := mustParse(t, `{"resources":[
		{"resourceType":"microsoft.entra.group","properties":[{"displayName":"Admins"},{"displayName":"Admins"}]},
		{"resourceType":"microsoft.entra.group","properties":[{"displayName":"Admins"}]}
	]}`)

	_, err := New(fs).Normalize(payload, testRoot)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"entra/group/Admins.yaml",
		"entra/group/Admins_2.yaml",
		"entra/group/Admins_3.yaml",
	}, listFiles(t, fs, testRoot))
}

func TestNormalizeKeepsExistingFiles(t *testing.T) {
	fs := afero.NewMemMapFs()
	existing := filepath.Join(testRoot, "entra", "group", "Admins.yaml")
	writeFile(t, fs, existing, "old\n")

	payload := mustParse(t, `{"resources":[{"resourceType":"microsoft.entra.group","properties":[{"displayName":"Admins"}]}]}`)
	result, err := New(fs).Normalize(payload, testRoot)
	require.NoError(t, err)

	assert.Equal(t, []string{filepath.Join(testRoot, "entra", "group", "Admins_2.yaml")}, result.Written)
	assert.Equal(t, "old\n", readFile(t, fs, existing))
}

func TestNormalizeDeduplicatesIgnoringCase(t *testing.T) {
	fs := afero.NewMemMapFs()
	payload := mustParse(t, `{"resources":[
		{"resourceType":"microsoft.entra.group","properties":[{"displayName":"Dup"},{"displayName":"dup"},{"displayName":"DUP"}]}
	]}`)

	result, err := New(fs, WithPrune(true)).Normalize(payload, testRoot)
	require.NoError(t, err)

	dir := filepath.Join(testRoot, "entra", "group")
	assert.Equal(t, []string{
		filepath.Join(dir, "Dup.yaml"),
		filepath.Join(dir, "dup_2.yaml"),
		filepath.Join(dir, "DUP_3.yaml"),
	}, result.Written)
}

func TestNormalizeKeepsExistingFilesIgnoringCase(t *testing.T) {
	fs := afero.NewMemMapFs()
	existing := filepath.Join(testRoot, "entra", "group", "admins.yaml")
	writeFile(t, fs, existing, "old\n")

	payload := mustParse(t, `{"resources":[{"resourceType":"microsoft.entra.group","properties":[{"displayName":"Admins"}]}]}`)
	result, err := New(fs).Normalize(payload, testRoot)
	require.NoError(t, err)

	assert.Equal(t, []string{filepath.Join(testRoot, "entra", "group", "Admins_2.yaml")}, result.Written)
	assert.Equal(t, "old\n", readFile(t, fs, existing))
}

func TestNormalizePruneCaseOnlyRename(t *testing.T) {
	fs := afero.NewMemMapFs()
	dir := filepath.Join(testRoot, "entra", "conditionalaccesspolicy")
	writeFile(t, fs, filepath.Join(dir, "policya.yaml"), "old\n")

	payload := mustParse(t, `{"resources":[{"resourceType":"microsoft.entra.conditionalaccesspolicy","properties":[{"displayName":"PolicyA","state":"enabled"}]}]}`)
	result, err := New(fs, WithPrune(true)).Normalize(payload, testRoot)
	require.NoError(t, err)

	assert.Equal(t, []string{filepath.Join(dir, "policya.yaml")}, result.Pruned)
	assert.Equal(t, []string{filepath.Join(dir, "PolicyA.yaml")}, result.Written)
	assert.Equal(t, []string{"entra/conditionalaccesspolicy/PolicyA.yaml"}, listFiles(t, fs, testRoot))
	assert.Equal(t, "displayName: PolicyA\nstate: enabled\n", readFile(t, fs, filepath.Join(dir, "PolicyA.yaml")))
}

func TestNormalizeSanitizesNames(t *testing.T) {
	fs := afero.NewMemMapFs()
	payload := mustParse(t, `{"resources":[
		{"resourceType":"microsoft.entra.namedlocation","properties":[{"displayName":"Office: HQ/EU"},{"displayName":".."}]},
		{"resourceType":"broken","properties":{"id":"x"}}
	]}`)

	_, err := New(fs).Normalize(payload, testRoot)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"entra/namedlocation/Office_HQ_EU.yaml",
		"entra/namedlocation/_.yaml",
		"unknown/unknown/x.yaml",
	}, listFiles(t, fs, testRoot))
}

func TestNormalizeSkipsInvalidEntriesAndEmptyBlocks(t *testing.T) {
	fs := afero.NewMemMapFs()
	core, logs := observer.New(zapcore.WarnLevel)
	payload := mustParse(t, `{"resources":[
		"not an object",
		{"resourceType":"microsoft.entra.group","properties":[1,2]},
		{"resourceType":"microsoft.entra.user","properties":[{"id":"u1"}]}
	]}`)

	result, err := New(fs, WithLogger(zap.New(core))).Normalize(payload, testRoot)
	require.NoError(t, err)

	assert.Equal(t, 1, result.SkippedEntries)
	assert.Equal(t, 1, result.SkippedBlocks)
	assert.Equal(t, []string{"entra/user/u1.yaml"}, listFiles(t, fs, testRoot))
	assert.Equal(t, 1, logs.FilterMessage("skipping non-object resource entry").Len())
	assert.Equal(t, 1, logs.FilterMessage("no parseable instances").Len())

	exists, err := afero.DirExists(fs, filepath.Join(testRoot, "entra", "group"))
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestNormalizeEmptyPayload(t *testing.T) {
	fs := afero.NewMemMapFs()
	core, logs := observer.New(zapcore.WarnLevel)

	result, err := New(fs, WithLogger(zap.New(core))).Normalize(mustParse(t, `{"resources":[]}`), testRoot)
	require.NoError(t, err)
	assert.Empty(t, result.Written)
	assert.Equal(t, 1, logs.FilterMessage("snapshot payload contains no resources").Len())
}

func TestNormalizePrune(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, filepath.Join(testRoot, "entra", "user", "u1.yaml"), "stale: true\n")
	writeFile(t, fs, filepath.Join(testRoot, "entra", "user", "gone.yaml"), "gone: true\n")
	writeFile(t, fs, filepath.Join(testRoot, "exchange", "old", "Removed.yaml"), "x: 1\n")
	writeFile(t, fs, filepath.Join(testRoot, "exchange", "old", "notes.txt"), "keep\n")
	writeFile(t, fs, filepath.Join(testRoot, "intune", "legacy", "Old.yaml"), "x: 1\n")
	writeFile(t, fs, filepath.Join(testRoot, DebugDirName, "snapshot_20240101T000000Z.json"), "{}\n")
	writeFile(t, fs, filepath.Join(testRoot, DebugDirName, "kept.yaml"), "x: 1\n")

	payload := mustParse(t, `{"resources":[{"resourceType":"microsoft.entra.user","properties":[{"id":"u1","enabled":true}]}]}`)
	result, err := New(fs, WithPrune(true)).Normalize(payload, testRoot)
	require.NoError(t, err)

	assert.Equal(t, []string{filepath.Join(testRoot, "entra", "user", "u1.yaml")}, result.Written)
	assert.Equal(t, []string{
		filepath.Join(testRoot, "entra", "user", "gone.yaml"),
		filepath.Join(testRoot, "exchange", "old", "Removed.yaml"),
		filepath.Join(testRoot, "intune", "legacy", "Old.yaml"),
	}, result.Pruned)

	assert.Equal(t, []string{
		"_debug/kept.yaml",
		"_debug/snapshot_20240101T000000Z.json",
		"entra/user/u1.yaml",
		"exchange/old/notes.txt",
	}, listFiles(t, fs, testRoot))
	assert.Equal(t, "enabled: true\nid: u1\n", readFile(t, fs, filepath.Join(testRoot, "entra", "user", "u1.yaml")))

	for _, dir := range []string{"intune/legacy", "intune"} {
		exists, err := afero.DirExists(fs, filepath.Join(testRoot, dir))
		require.NoError(t, err)
		assert.False(t, exists, dir)
	}
}

func TestNormalizePruneMissingRoot(t *testing.T) {
	fs := afero.NewMemMapFs()
	payload := mustParse(t, `{"resources":[{"resourceType":"microsoft.entra.user","properties":[{"id":"u1"}]}]}`)

	result, err := New(fs, WithPrune(true)).Normalize(payload, testRoot)
	require.NoError(t, err)
	assert.Len(t, result.Written, 1)
	assert.Empty(t, result.Pruned)
}

func TestNormalizeWriteFailure(t *testing.T) {
	fs := afero.NewReadOnlyFs(afero.NewMemMapFs())
	payload := mustParse(t, `{"resources":[{"resourceType":"microsoft.entra.user","properties":[{"id":"u1"}]}]}`)

	_, err := New(fs).Normalize(payload, testRoot)
	require.Error(t, err)
	assert.True(t, snapshot.IsCategory(err, snapshot.ErrCategoryFilesystem))
}
