package yaml

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HarborLabs/playbook/persistence"
)

const renewalYAML = `id: renewal-v2
title: Renewal Planning
steps:
  - id: kickoff
    ordinal: 10
    title: Kickoff
    chat:
      greeting: Welcome to renewal planning.
      entry: intro
      branches:
        intro:
          response: Where should we start?
  - id: wrap-up
    ordinal: 20
    title: Wrap Up
`

const invalidYAML = `id: broken
title: Broken
steps:
  - id: first
    ordinal: 10
    title: First
  - id: first
    ordinal: 10
    title: Duplicate
`

func writeFixture(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadWorkflowByFilename(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "renewal-v2.yaml", renewalYAML)

	repo := NewRepository(dir, nil)
	wf, err := repo.LoadWorkflow("renewal-v2")
	require.NoError(t, err)
	assert.Equal(t, "renewal-v2", wf.ID)
	assert.Equal(t, 2, wf.StepCount())

	step := wf.StepByOrdinal(10)
	require.NotNil(t, step)
	require.NotNil(t, step.Chat)
	assert.Equal(t, "intro", step.Chat.Entry)
}

func TestLoadWorkflowYMLExtension(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "renewal-v2.yml", renewalYAML)

	repo := NewRepository(dir, nil)
	_, err := repo.LoadWorkflow("renewal-v2")
	assert.NoError(t, err)
}

func TestLoadWorkflowExplicitMapping(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "playbooks.yaml", renewalYAML)

	repo := NewRepository(dir, map[string]string{"renewal-v2": "playbooks.yaml"})
	wf, err := repo.LoadWorkflow("renewal-v2")
	require.NoError(t, err)
	assert.Equal(t, "renewal-v2", wf.ID)
}

func TestLoadWorkflowNotFound(t *testing.T) {
	repo := NewRepository(t.TempDir(), nil)

	_, err := repo.LoadWorkflow("missing")
	assert.ErrorIs(t, err, persistence.ErrWorkflowNotFound)
}

func TestLoadWorkflowInvalidDefinition(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "broken.yaml", invalidYAML)

	repo := NewRepository(dir, nil)
	_, err := repo.LoadWorkflow("broken")
	assert.ErrorIs(t, err, persistence.ErrWorkflowInvalid)
}

func TestLoadWorkflowMalformedYAML(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "mangled.yaml", "id: [unclosed")

	repo := NewRepository(dir, nil)
	_, err := repo.LoadWorkflow("mangled")
	assert.Error(t, err)
}

func TestLoadWorkflowCaches(t *testing.T) {
	dir := t.TempDir()
	path := writeFixture(t, dir, "renewal-v2.yaml", renewalYAML)

	repo := NewRepository(dir, nil)
	first, err := repo.LoadWorkflow("renewal-v2")
	require.NoError(t, err)

	// Removing the file must not affect cached loads.
	require.NoError(t, os.Remove(path))
	second, err := repo.LoadWorkflow("renewal-v2")
	require.NoError(t, err)
	assert.Same(t, first, second)
}

func TestListWorkflows(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "renewal-v2.yaml", renewalYAML)
	onboarding := `id: onboarding
title: Onboarding
steps:
  - id: welcome
    ordinal: 10
    title: Welcome
`
	writeFixture(t, dir, "onboarding.yml", onboarding)
	writeFixture(t, dir, "notes.txt", "not a workflow")

	repo := NewRepository(dir, nil)
	ids, err := repo.ListWorkflows()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"renewal-v2", "onboarding"}, ids)
}
