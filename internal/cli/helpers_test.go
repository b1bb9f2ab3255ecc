package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

const welcomeRuleCUE = `
rule: welcome: {
	name: "Welcome email"
	trigger: {
		type: "CONTACT_CREATED"
		conditions: {source: "web"}
	}
	actions: [
		{type: "SEND_EMAIL", config: {subject: "Welcome!", body: "<p>Hi</p>"}},
		{type: "ADD_TAG", config: {tag: "lead"}},
	]
}
`

const stageRuleCUE = `
rule: "stage-s2": {
	name: "Stage s2 task"
	trigger: {
		type: "PIPELINE_STAGE_CHANGED"
		conditions: {stageId: "s2"}
	}
	actions: [{type: "CREATE_TASK", config: {title: "Prepare proposal"}}]
}
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// execute runs cmd with args and returns stdout.
func execute(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// configFor writes a config file pointing the sqlite store into dir.
func configFor(t *testing.T, dir string) string {
	t.Helper()
	return writeFile(t, dir, "bizflow.yaml", "database:\n  driver: sqlite\n  path: "+filepath.Join(dir, "bizflow.db")+"\n")
}
