package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndexCmdCreatesDataDirectory(t *testing.T) {
	testDir := t.TempDir()
	createTestProject(t, testDir)

	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"index", testDir})

	require.NoError(t, cmd.Execute())
	assert.DirExists(t, filepath.Join(testDir, ".codesearch"))
}

func TestIndexCmdCreatesPersistedLayout(t *testing.T) {
	testDir := t.TempDir()
	createTestProject(t, testDir)

	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"index", testDir})

	require.NoError(t, cmd.Execute())

	dataDir := filepath.Join(testDir, ".codesearch")
	assert.FileExists(t, filepath.Join(dataDir, "meta.json"))
	assert.FileExists(t, filepath.Join(dataDir, "symbols.db"))
	assert.FileExists(t, filepath.Join(dataDir, "bm25.snapshot"))
}

func TestIndexCmdReportsProgress(t *testing.T) {
	testDir := t.TempDir()
	createTestProject(t, testDir)

	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"index", testDir})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "Indexed")
}

func TestIndexCmdFailsOnNonExistentPath(t *testing.T) {
	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"index", "/nonexistent/path"})

	assert.Error(t, cmd.Execute())
}

func TestIndexCmdDefaultsToCurrentDirectory(t *testing.T) {
	testDir := t.TempDir()
	createTestProject(t, testDir)

	oldCwd, err := os.Getwd()
	require.NoError(t, err)
	defer func() { _ = os.Chdir(oldCwd) }()
	require.NoError(t, os.Chdir(testDir))

	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"index"})

	require.NoError(t, cmd.Execute())
	assert.DirExists(t, filepath.Join(testDir, ".codesearch"))
}

func TestIndexCmdRespectsGitignore(t *testing.T) {
	testDir := t.TempDir()
	createTestProjectWithGitignore(t, testDir)

	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"index", testDir})

	require.NoError(t, cmd.Execute())
}

func TestIndexCmdForceRebuildsIndex(t *testing.T) {
	testDir := t.TempDir()
	createTestProject(t, testDir)

	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"index", testDir})
	require.NoError(t, cmd.Execute())

	metaPath := filepath.Join(testDir, ".codesearch", "meta.json")
	require.FileExists(t, metaPath)

	cmd = NewRootCmd()
	buf = new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"index", "--force", testDir})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "Cleared existing index")
	assert.FileExists(t, metaPath)
}

// Helper functions to create test projects.

func createTestProject(t *testing.T, dir string) {
	t.Helper()

	cfg := `embedder:
  dimensions: 32
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".codesearch.yaml"), []byte(cfg), 0644))

	goMod := "module testproject\n\ngo 1.21\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "go.mod"), []byte(goMod), 0644))

	mainGo := `package main

import "fmt"

func main() {
	fmt.Println("Hello, World!")
}

func helper() string {
	return "helper function"
}
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.go"), []byte(mainGo), 0644))
}

func createTestProjectWithGitignore(t *testing.T, dir string) {
	t.Helper()

	createTestProject(t, dir)

	gitignore := "*.log\nbuild/\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".gitignore"), []byte(gitignore), 0644))

	require.NoError(t, os.Mkdir(filepath.Join(dir, "build"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "build", "output.go"), []byte("package build"), 0644))
}
