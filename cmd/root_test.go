package cmd

import (
	"context"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mfeldman486/resume-harvester/internal/config"
	"github.com/mfeldman486/resume-harvester/internal/orchestrator"
)

// mockApp satisfies the App interface without building any real services.
type mockApp struct {
	closed bool
}

func (m *mockApp) Close()                                  { m.closed = true }
func (m *mockApp) GetLogger() *zap.Logger                  { return zap.NewNop() }
func (m *mockApp) GetConfig() config.Config                { return config.Config{} }
func (m *mockApp) GetOrchestrator() *orchestrator.Orchestrator { return nil }

func TestRootCommandInjectsAndClosesApp(t *testing.T) {
	orig := newApp
	t.Cleanup(func() { newApp = orig })

	mock := &mockApp{}
	newApp = func(_ context.Context) (App, error) { return mock, nil }

	var sawApp bool
	probe := &cobra.Command{
		Use: "probe",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			sawApp = a == App(mock)
			return nil
		},
	}

	root := newRootCmd()
	root.AddCommand(probe)
	root.SetArgs([]string{"probe"})

	require.NoError(t, root.Execute())
	assert.True(t, sawApp, "subcommand should see the injected app")
	assert.True(t, mock.closed, "PersistentPostRun should close the app")
}

func TestResolveAppWithoutInjection(t *testing.T) {
	_, err := resolveApp(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not initialized")
}
