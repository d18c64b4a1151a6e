package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/scigo-tune/pkg/errors"
	"github.com/YuminosukeSato/scigo-tune/pkg/log"
)

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	prev := log.GetLogger()
	t.Cleanup(func() {
		log.SetLogger(prev)
		errors.SetZerologWarnFunc(nil)
	})

	var stdout, stderr bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

const smallExperiment = `
experiment "nb" {
  title = "Gaussian naive Bayes"
  cv    = 3

  step "scale" { estimator = "standard_scaler" }
  step "clf"   { estimator = "gaussian_nb" }

  grid {
    param "clf__var_smoothing" { values = [1e-9, 1e-6, 1e-3] }
  }
}

experiment "tree" {
  cv = 3
  step "clf" { estimator = "decision_tree" }
  grid {
    param "max_depth" { values = [1, 3] }
  }
}
`

func writeExperiment(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "small.hcl")
	require.NoError(t, os.WriteFile(path, []byte(smallExperiment), 0o644))
	return path
}

func TestListBuiltin(t *testing.T) {
	out, _, err := execute(t, "list")
	require.NoError(t, err)
	for _, name := range []string{"svc_vs_logistic", "pca_logistic", "reduce_dim", "random_tree", "random_knn"} {
		assert.Contains(t, out, name)
	}
}

func TestListFile(t *testing.T) {
	out, _, err := execute(t, "list", "--file", writeExperiment(t))
	require.NoError(t, err)
	assert.Contains(t, out, "Gaussian naive Bayes")
	assert.Contains(t, out, "tree")
	assert.NotContains(t, out, "random_knn")
}

func TestRunNamed(t *testing.T) {
	plotDir := t.TempDir()
	out, stderr, err := execute(t, "run", "-f", writeExperiment(t), "-n", "nb", "-j", "2", "--plot-dir", plotDir, "--log-level", "info")
	require.NoError(t, err)

	assert.Contains(t, out, "=== Gaussian naive Bayes ===")
	assert.Contains(t, out, "best params:")
	assert.NotContains(t, out, "=== tree ===")
	assert.FileExists(t, filepath.Join(plotDir, "nb.png"))
	assert.Contains(t, stderr, "Experiment finished")
}

func TestRunAllFromFile(t *testing.T) {
	out, _, err := execute(t, "run", "--file", writeExperiment(t))
	require.NoError(t, err)
	assert.Contains(t, out, "=== Gaussian naive Bayes ===")
	assert.Contains(t, out, "=== tree ===")
}

func TestRunErrors(t *testing.T) {
	_, _, err := execute(t, "run", "--file", filepath.Join(t.TempDir(), "missing.hcl"))
	assert.Error(t, err)

	_, _, err = execute(t, "run", "--file", writeExperiment(t), "--name", "nope")
	assert.Error(t, err)

	_, _, err = execute(t, "list", "--log-level", "loud")
	assert.Error(t, err)
}

func TestDefaultLogLevel(t *testing.T) {
	flag := NewRootCommand().PersistentFlags().Lookup("log-level")
	require.NotNil(t, flag)
	assert.Equal(t, "warn", flag.DefValue)

	_, _, err := execute(t, "list")
	require.NoError(t, err)
	assert.False(t, log.GetLogger().Enabled(context.Background(), log.LevelInfo))
	assert.True(t, log.GetLogger().Enabled(context.Background(), log.LevelWarn))
}

func TestBuiltinAndEstimators(t *testing.T) {
	out, _, err := execute(t, "builtin")
	require.NoError(t, err)
	assert.Contains(t, out, `experiment "reduce_dim"`)

	out, _, err = execute(t, "estimators")
	require.NoError(t, err)
	assert.Contains(t, out, "logistic_regression")
	assert.Contains(t, out, "f1_macro")
}
