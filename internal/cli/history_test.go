package cli

import (
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSession(t *testing.T, db string) string {
	t.Helper()
	out, _, err := executeCommand(t, "history", "new", "demo", "--db", db)
	require.NoError(t, err)
	id := strings.TrimSpace(out)
	require.NotEmpty(t, id)
	return id
}

func TestHistory_Workflow(t *testing.T) {
	db := filepath.Join(t.TempDir(), "history.db")
	id := newSession(t, db)

	out, _, err := executeCommand(t, "history", "add", id, "testdata/person.yaml", "--db", db)
	require.NoError(t, err)
	assert.Equal(t, "✓ admitted entry 1\n", out)

	out, _, err = executeCommand(t, "history", "add", id, "testdata/person.yaml", "--db", db)
	require.NoError(t, err)
	assert.Equal(t, "- not admitted: no structural change since the last entry\n", out)

	out, _, err = executeCommand(t, "history", "add", id, "testdata/person_city.yaml", "--db", db, "--editing")
	require.NoError(t, err)
	assert.Equal(t, "- not admitted: graph is mid-edit\n", out)

	out, _, err = executeCommand(t, "history", "add", id, "testdata/person_city.yaml", "--db", db)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "✓ admitted entry 2\n"), out)
	assert.Contains(t, out, "+ node n3\n")

	out, _, err = executeCommand(t, "history", "list", id, "--db", db, "--format", "json")
	require.NoError(t, err)
	var list struct {
		Data []EntryView `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &list))
	require.Len(t, list.Data, 2)
	assert.Equal(t, int64(1), list.Data[0].Seq)
	assert.Nil(t, list.Data[0].Diff)
	assert.Less(t, list.Data[0].Timestamp, list.Data[1].Timestamp)
	require.NotNil(t, list.Data[1].Diff)
	assert.Equal(t, []string{"2"}, list.Data[1].Diff.LinksAdded)

	out, _, err = executeCommand(t, "history", "show", id, "2", "--db", db, "--format", "json")
	require.NoError(t, err)
	var show struct {
		Data EntryView `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &show))
	assert.Contains(t, show.Data.Query, "?n3 a ex:City.")
	assert.Contains(t, show.Data.Paraphrase, "Org (n2) located in City (n3)")
	require.NotNil(t, show.Data.Graph)
	assert.Len(t, show.Data.Graph.Subjects, 3)

	out, _, err = executeCommand(t, "history", "sessions", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, id)
	assert.Contains(t, out, "2 entries  demo")

	out, _, err = executeCommand(t, "history", "delete", id, "--db", db)
	require.NoError(t, err)
	assert.Equal(t, "deleted "+id+"\n", out)

	out, _, err = executeCommand(t, "history", "sessions", "--db", db)
	require.NoError(t, err)
	assert.Equal(t, "No sessions.\n", out)
}

func TestHistory_Errors(t *testing.T) {
	db := filepath.Join(t.TempDir(), "history.db")
	id := newSession(t, db)

	tests := []struct {
		name string
		args []string
		code string
	}{
		{"unknown session", []string{"history", "list", "nope"}, ErrCodeSessionNotFound},
		{"unknown entry", []string{"history", "show", id, "7"}, ErrCodeEntryNotFound},
		{"bad seq", []string{"history", "show", id, "first"}, ErrCodeGeneric},
		{"delete unknown", []string{"history", "delete", "nope"}, ErrCodeSessionNotFound},
		{"search without embedder", []string{"history", "search", id, "people"}, ErrCodeNoEmbedder},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, _, err := executeCommand(t, append(tt.args, "--db", db, "--format", "json")...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))

			var resp CLIResponse
			require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.code, resp.Error.Code)
		})
	}
}

func TestHistory_AddInvalidGraph(t *testing.T) {
	db := filepath.Join(t.TempDir(), "history.db")
	id := newSession(t, db)

	out, _, err := executeCommand(t, "history", "add", id, "testdata/dangling.yaml", "--db", db)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Error [DANGLING_LINK]")
}
