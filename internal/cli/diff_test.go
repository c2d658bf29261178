package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiff_Text(t *testing.T) {
	out, _, err := executeCommand(t, "diff", "testdata/person.yaml", "testdata/person_city.yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "+ node n3\n")
	assert.Contains(t, out, "+ link 2\n")
	assert.NotContains(t, out, "- node")
	// n1's constraints carry no ids but keep their identity
	assert.NotContains(t, out, "~ node n1")
}

func TestDiff_Reversed(t *testing.T) {
	out, _, err := executeCommand(t, "diff", "testdata/person_city.yaml", "testdata/person.yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "- node n3\n")
	assert.Contains(t, out, "- link 2\n")
}

func TestDiff_Identical(t *testing.T) {
	out, _, err := executeCommand(t, "diff", "testdata/person.yaml", "testdata/person.yaml")
	require.NoError(t, err)
	assert.Equal(t, "no structural changes\n", out)
}

func TestDiff_JSON(t *testing.T) {
	out, _, err := executeCommand(t, "diff", "testdata/person.yaml", "testdata/person_city.yaml", "--format", "json")
	require.NoError(t, err)

	var resp struct {
		Status string     `json:"status"`
		Data   DiffResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.False(t, resp.Data.Empty)
	assert.Equal(t, []string{"n3"}, resp.Data.Summary.NodesAdded)
	assert.Equal(t, []string{"2"}, resp.Data.Summary.LinksAdded)
	assert.Empty(t, resp.Data.Summary.NodesRemoved)
}

func TestDiff_MissingRight(t *testing.T) {
	_, _, err := executeCommand(t, "diff", "testdata/person.yaml", "testdata/nope.yaml")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
