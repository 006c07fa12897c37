// accolade/cmd/accoladed/main_test.go

package main

import (
	"bufio"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rgehrsitz/accolade/pkg/ledger"
)

const helloRule = `
name: Hello World
image_url: hello.png
description: Created an account
creator: ralph
discussion: https://example.org/badges/hello
trigger:
  topic: fas.user.create
`

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func rulesDir(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return dir
}

// sandbox points the databases at a temp dir and keeps everything in
// process.
func sandbox(t *testing.T) (ledgerURL, archiveURL string) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("ACCOLADE_CACHE_BACKEND", "memory")
	t.Setenv("ACCOLADE_IDENTITY_STATIC_USERS", "ralph,decause")
	t.Setenv("ACCOLADE_ENGINE_EMAIL_DOMAIN", "example.org")
	t.Setenv("ACCOLADE_ENGINE_WAIT_FOR_ARCHIVE", "false")
	t.Setenv("ACCOLADE_LOGGING_OUTPUT", "json")
	return "sqlite://" + filepath.Join(dir, "ledger.db"), "sqlite://" + filepath.Join(dir, "archive.db")
}

func TestCheck(t *testing.T) {
	dir := rulesDir(t, map[string]string{"hello.yml": helloRule})
	out, err := execute(t, "check", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "ok    Hello World")

	dir = rulesDir(t, map[string]string{"hello.yml": helloRule, "broken.yml": "name: Broken\n"})
	out, err = execute(t, "check", dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2")
	assert.Contains(t, out, "FAIL")
	assert.Contains(t, out, "broken.yml")
}

func TestCheckMissingDirectory(t *testing.T) {
	_, err := execute(t, "check", filepath.Join(t.TempDir(), "absent"))
	assert.Error(t, err)
}

func TestMigrateAndEvaluate(t *testing.T) {
	ledgerURL, archiveURL := sandbox(t)
	dbFlags := []string{"--ledger-url", ledgerURL, "--archive-url", archiveURL}

	out, err := execute(t, append([]string{"migrate"}, dbFlags...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "Schemas are up to date")

	// Creating the schemas twice is harmless.
	_, err = execute(t, append([]string{"migrate"}, dbFlags...)...)
	require.NoError(t, err)

	eventsDir := t.TempDir()
	good := filepath.Join(eventsDir, "good.json")
	require.NoError(t, os.WriteFile(good,
		[]byte(`{"id":"e1","topic":"org.example.prod.fas.user.create","agent_name":"ralph"}`), 0o644))
	bad := filepath.Join(eventsDir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"id":"e2"}`), 0o644))

	dir := rulesDir(t, map[string]string{"hello.yml": helloRule})
	args := append([]string{"evaluate", "--rules", dir, good, bad}, dbFlags...)
	out, err = execute(t, args...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2")

	var results []evaluation
	scanner := bufio.NewScanner(bytes.NewBufferString(out))
	for scanner.Scan() {
		var res evaluation
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &res))
		results = append(results, res)
	}
	require.Len(t, results, 2)
	assert.Equal(t, "e1", results[0].EventID)
	require.Len(t, results[0].Decisions, 1)
	assert.Equal(t, []string{"ralph"}, results[0].Decisions[0].Awardees)
	assert.NotEmpty(t, results[1].Error)

	// Evaluation leaves the ledger untouched.
	l, err := ledger.Open(ledgerURL)
	require.NoError(t, err)
	defer l.Close()
	badge, err := l.GetBadge(context.Background(), "hello-world")
	require.NoError(t, err)
	assert.Nil(t, badge)
}

func TestInvalidConfig(t *testing.T) {
	t.Setenv("ACCOLADE_ENGINE_WORKERS", "0")
	_, err := execute(t, "migrate")
	assert.Error(t, err)
}
