package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearchCmdRequiresIndex(t *testing.T) {
	tmpDir := t.TempDir()

	oldDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(tmpDir))
	defer func() { _ = os.Chdir(oldDir) }()

	rootCmd := NewRootCmd()
	rootCmd.SetArgs([]string{"search", "test query"})

	err := rootCmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no index found")
}

func TestSearchCmdRequiresQuery(t *testing.T) {
	rootCmd := NewRootCmd()
	buf := &bytes.Buffer{}
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs([]string{"search"})

	assert.Error(t, rootCmd.Execute())
}

// indexThenSearch builds a tiny project, indexes it, and returns the
// project dir plus the search command's stdout for the given query/args.
func indexThenSearch(t *testing.T, extraSearchArgs ...string) (string, string) {
	t.Helper()
	tmpDir := t.TempDir()
	createTestProject(t, tmpDir)

	indexCmd := NewRootCmd()
	indexCmd.SetArgs([]string{"index", tmpDir})
	require.NoError(t, indexCmd.Execute())

	oldDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(tmpDir))
	defer func() { _ = os.Chdir(oldDir) }()

	searchCmd := NewRootCmd()
	buf := &bytes.Buffer{}
	searchCmd.SetOut(buf)
	args := append([]string{"search"}, extraSearchArgs...)
	searchCmd.SetArgs(args)

	require.NoError(t, searchCmd.Execute())
	return tmpDir, buf.String()
}

func TestSearchCmdWithIndexReturnsResults(t *testing.T) {
	_, output := indexThenSearch(t, "helper")
	assert.Contains(t, output, "main.go")
}

func TestSearchCmdFormatTextShowsScore(t *testing.T) {
	_, output := indexThenSearch(t, "helper", "--format", "text")
	assert.Regexp(t, `score: \d+\.\d+`, output)
}

func TestSearchCmdFormatJSONValidJSON(t *testing.T) {
	_, output := indexThenSearch(t, "helper", "--format", "json")
	assert.Contains(t, output, "{")
	assert.Contains(t, output, "\"file_path\"")
}

func TestSearchCmdLimitFlagDefault(t *testing.T) {
	rootCmd := NewRootCmd()
	searchCmd, _, _ := rootCmd.Find([]string{"search"})
	require.NotNil(t, searchCmd)

	limitFlag := searchCmd.Flags().Lookup("limit")
	require.NotNil(t, limitFlag)
	assert.Equal(t, "20", limitFlag.DefValue)
}

func TestSearchCmdFormatFlagDefault(t *testing.T) {
	rootCmd := NewRootCmd()
	searchCmd, _, _ := rootCmd.Find([]string{"search"})
	require.NotNil(t, searchCmd)

	formatFlag := searchCmd.Flags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)
}

func TestSearchCmdNoResultsShowsMessage(t *testing.T) {
	tmpDir := t.TempDir()
	createTestProject(t, tmpDir)

	indexCmd := NewRootCmd()
	indexCmd.SetArgs([]string{"index", tmpDir})
	require.NoError(t, indexCmd.Execute())

	oldDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(tmpDir))
	defer func() { _ = os.Chdir(oldDir) }()

	searchCmd := NewRootCmd()
	buf := &bytes.Buffer{}
	searchCmd.SetOut(buf)
	searchCmd.SetArgs([]string{"search", "nonexistent_xyz_123_query"})

	require.NoError(t, searchCmd.Execute())
	assert.Contains(t, buf.String(), "No results")
}

func TestSearchCmdFindsProjectRootFromSubdir(t *testing.T) {
	tmpDir := t.TempDir()
	createTestProject(t, tmpDir)
	sub := filepath.Join(tmpDir, "sub")
	require.NoError(t, os.Mkdir(sub, 0755))

	indexCmd := NewRootCmd()
	indexCmd.SetArgs([]string{"index", tmpDir})
	require.NoError(t, indexCmd.Execute())

	oldDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(sub))
	defer func() { _ = os.Chdir(oldDir) }()

	searchCmd := NewRootCmd()
	buf := &bytes.Buffer{}
	searchCmd.SetOut(buf)
	searchCmd.SetArgs([]string{"search", "helper"})

	require.NoError(t, searchCmd.Execute())
}
