package cmd

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gracepitts/fda-recalls/internal/app"
	"github.com/gracepitts/fda-recalls/internal/config"
)

func TestRootCommandRegistersSubcommands(t *testing.T) {
	root := newRootCmd()

	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.Contains(t, names, "ingest")
	assert.Contains(t, names, "process")
	assert.Contains(t, names, "visualize")
	assert.Contains(t, names, "run")
	assert.Contains(t, names, "serve")
}

func TestPersistentPreRunSurfacesAppFailure(t *testing.T) {
	orig := newApp
	t.Cleanup(func() { newApp = orig })
	newApp = func(context.Context, config.Config, ...app.Option) (App, error) {
		return nil, errors.New("no services")
	}

	root := newRootCmd()
	root.SetArgs([]string{"visualize"})
	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "initialize services")
}

func TestResolveAppMissingFromContext(t *testing.T) {
	_, err := resolveApp(context.Background())
	assert.Error(t, err)
}
