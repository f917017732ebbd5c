package machine

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalog_ContainsBuiltinMachines(t *testing.T) {
	c, err := DefaultCatalog()
	require.NoError(t, err)

	assert.Equal(t, []string{"agamotto", "basic", "github-workflow", "titan"}, c.Names())
}

func TestDefaultCatalog_PlacementTables(t *testing.T) {
	c, err := DefaultCatalog()
	require.NoError(t, err)

	// GIVEN the agamotto and titan profiles
	agamotto, err := c.Lookup("agamotto")
	require.NoError(t, err)
	titan, err := c.Lookup("titan")
	require.NoError(t, err)

	// THEN both list eight placements in the same order, differing only in the second socket's cores
	assert.Equal(t, []string{
		"same_local_DIMM", "same_remote_DIMM", "same_local_CXL", "same_remote_CXL",
		"diff_setter_DIMM", "diff_getter_DIMM", "diff_setter_CXL", "diff_getter_CXL",
	}, agamotto.PlacementNames())
	assert.Equal(t, agamotto.PlacementNames(), titan.PlacementNames())

	remote, ok := agamotto.Placement("same_remote_CXL")
	require.True(t, ok)
	assert.Equal(t, Placement{Name: "same_remote_CXL", SetterCore: 20, GetterCore: 21, SetterNode: 1, GetterNode: 1, StructureNode: 2}, remote)
	getter, ok := titan.Placement("diff_getter_CXL")
	require.True(t, ok)
	assert.Equal(t, Placement{Name: "diff_getter_CXL", SetterCore: 32, GetterCore: 0, SetterNode: 1, GetterNode: 0, StructureNode: 2}, getter)
}

func TestDefaultCatalog_GithubWorkflowIsConstrained(t *testing.T) {
	c, err := DefaultCatalog()
	require.NoError(t, err)

	p, err := c.Lookup("github-workflow")
	require.NoError(t, err)

	assert.True(t, p.Constrained)
	assert.Equal(t, 2, p.LoopRounds)
	assert.True(t, p.Preparation.IsZero())

	basic, err := c.Lookup("basic")
	require.NoError(t, err)
	assert.Equal(t, 1000000, basic.LoopRounds)
	assert.Equal(t, Preparation{DisableNUMABalancing: true, Governor: "performance", Prefetcher: "on"}, basic.Preparation)
}

func TestLookup_UnknownName_ReturnsErrUnknownProfile(t *testing.T) {
	c, err := DefaultCatalog()
	require.NoError(t, err)

	_, err = c.Lookup("stormbreaker")

	assert.True(t, errors.Is(err, ErrUnknownProfile))
	assert.Contains(t, err.Error(), "stormbreaker")
}

func TestLookup_Auto_ResolvesToHostname(t *testing.T) {
	host, err := os.Hostname()
	require.NoError(t, err)
	c, err := LoadCatalog(strings.NewReader(`
profiles:
  - name: "` + host + `"
    loop_rounds: 5
    placements:
      - {name: p, setter_core: 0, getter_core: 1, setter_node: 0, getter_node: 0, ds_node: 0}
`))
	require.NoError(t, err)

	p, err := c.Lookup(AutoName)

	require.NoError(t, err)
	assert.Equal(t, host, p.Name)
}

func TestLoadCatalog_UnknownField_ReturnsError(t *testing.T) {
	_, err := LoadCatalog(strings.NewReader(`
profiles:
  - name: typo
    loop_round: 5
    placements:
      - {name: p, setter_core: 0, getter_core: 1, setter_node: 0, getter_node: 0, ds_node: 0}
`))

	assert.Error(t, err)
}

func TestLoadCatalog_InvalidProfiles_ReportsEveryProblem(t *testing.T) {
	// GIVEN profiles with several independent mistakes
	_, err := LoadCatalog(strings.NewReader(`
profiles:
  - name: a
    loop_rounds: 0
    preparation:
      governor: turbo
    placements:
      - {name: p, setter_core: -1, getter_core: 1, setter_node: 0, getter_node: 0, ds_node: 0}
      - {name: p, setter_core: 0, getter_core: 1, setter_node: 0, getter_node: 0, ds_node: 0}
  - name: a
    loop_rounds: 1
    placements:
      - {name: q, setter_core: 0, getter_core: 1, setter_node: 0, getter_node: 0, ds_node: 0}
`))

	// THEN the error lists all of them
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "LoopRounds")
	assert.Contains(t, msg, "Governor")
	assert.Contains(t, msg, "SetterCore")
	assert.Contains(t, msg, `duplicate placement "p"`)
	assert.Contains(t, msg, `duplicate profile "a"`)
}

func TestLoadCatalog_NoPlacements_ReturnsError(t *testing.T) {
	_, err := LoadCatalog(strings.NewReader("profiles:\n  - name: a\n    loop_rounds: 1\n"))

	assert.Error(t, err)
}

func TestLoadCatalogFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profiles.yaml")
	require.NoError(t, os.WriteFile(path, builtinProfiles, 0o644))

	c, err := LoadCatalogFile(path)
	require.NoError(t, err)
	assert.Len(t, c.Profiles, 4)

	_, err = LoadCatalogFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}
