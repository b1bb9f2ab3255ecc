package cli

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tallesnicacio/bizflow-pro-sub000/internal/compiler"
	"github.com/tallesnicacio/bizflow-pro-sub000/internal/ir"
	"github.com/tallesnicacio/bizflow-pro-sub000/internal/store"
)

func loadFixtureRules(t *testing.T) []LoadedRule {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, dir, "a.cue", welcomeRuleCUE)
	writeFile(t, dir, "b.cue", stageRuleCUE)
	result, errs := LoadRules(dir, LoadModeCollectAll)
	require.Empty(t, errs)
	return result.Rules
}

func TestImportRulesIsIdempotent(t *testing.T) {
	ctx := context.Background()
	st, err := store.Open(filepath.Join(t.TempDir(), "rules.db"))
	require.NoError(t, err)
	defer st.Close()

	loaded := loadFixtureRules(t)

	first, err := importRules(ctx, st, loaded, "T1")
	require.NoError(t, err)
	assert.Equal(t, 2, first.Created)
	assert.Equal(t, 0, first.Replaced)
	assert.Equal(t, compiler.RuleID("T1", "welcome"), first.Rules[0].ID)

	second, err := importRules(ctx, st, loaded, "T1")
	require.NoError(t, err)
	assert.Equal(t, 0, second.Created)
	assert.Equal(t, 2, second.Replaced)

	rules, err := st.ListRules(ctx, "T1")
	require.NoError(t, err)
	assert.Len(t, rules, 2)

	active, err := st.ListActiveRules(ctx, "T1", ir.TriggerContactCreated)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Len(t, active[0].Actions, 2)
}

func TestImportRulesRejects(t *testing.T) {
	ctx := context.Background()
	st, err := store.Open(filepath.Join(t.TempDir(), "rules.db"))
	require.NoError(t, err)
	defer st.Close()

	t.Run("no tenant", func(t *testing.T) {
		_, err := importRules(ctx, st, loadFixtureRules(t), "")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no tenant")
	})

	t.Run("invalid rule writes nothing", func(t *testing.T) {
		loaded := loadFixtureRules(t)
		loaded = append(loaded, LoadedRule{Key: "broken", Rule: ir.Rule{
			Name:    "broken",
			Trigger: &ir.Trigger{Type: ir.TriggerTagAdded},
		}})
		_, err := importRules(ctx, st, loaded, "T2")
		require.Error(t, err)
		var verr compiler.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, compiler.ErrRuleNoActions, verr.Code)

		rules, err := st.ListRules(ctx, "T2")
		require.NoError(t, err)
		assert.Empty(t, rules)
	})

	t.Run("tenant conflict", func(t *testing.T) {
		loaded := []LoadedRule{{Key: "x", Rule: ir.Rule{TenantID: "T9", Name: "x"}}}
		_, err := importRules(ctx, st, loaded, "T1")
		require.Error(t, err)
		assert.Contains(t, err.Error(), `declares tenant "T9"`)
	})
}

func TestRulesCommands(t *testing.T) {
	dir := t.TempDir()
	rulesDir := filepath.Join(dir, "rules")
	writeFile(t, rulesDir, "welcome.cue", welcomeRuleCUE)
	writeFile(t, rulesDir, "stage.cue", stageRuleCUE)
	opts := &RootOptions{Format: "json", ConfigFile: configFor(t, dir)}

	out, err := execute(t, NewRulesCommand(opts), "import", rulesDir, "--tenant", "T1")
	require.NoError(t, err)
	var imported struct {
		Data ImportResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &imported))
	assert.Equal(t, 2, imported.Data.Created)

	welcomeID := compiler.RuleID("T1", "welcome")
	_, err = execute(t, NewRulesCommand(opts), "set-active", welcomeID, "false", "--tenant", "T1")
	require.NoError(t, err)

	out, err = execute(t, NewRulesCommand(opts), "list", "--tenant", "T1")
	require.NoError(t, err)
	var listed struct {
		Data []ir.Rule `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &listed))
	require.Len(t, listed.Data, 2)
	for _, r := range listed.Data {
		assert.Equal(t, r.ID != welcomeID, r.IsActive, r.Name)
	}

	_, err = execute(t, NewRulesCommand(opts), "delete", welcomeID, "--tenant", "T1")
	require.NoError(t, err)
	_, err = execute(t, NewRulesCommand(opts), "delete", welcomeID, "--tenant", "T1")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	_, err = execute(t, NewRulesCommand(opts), "list")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--tenant is required")
}

func TestRulesImportInvalidFiles(t *testing.T) {
	dir := t.TempDir()
	rulesDir := filepath.Join(dir, "rules")
	writeFile(t, rulesDir, "bad.cue", `rule: bad: {name: "bad", trigger: {type: "DEAL_WON"}}`)
	opts := &RootOptions{Format: "text", ConfigFile: configFor(t, dir)}

	out, err := execute(t, NewRulesCommand(opts), "import", rulesDir, "--tenant", "T1")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error [E102]")
}
