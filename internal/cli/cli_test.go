package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/ChuLiYu/parabola/internal/config"
	"github.com/ChuLiYu/parabola/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeTestConfig writes a small config whose artifact lives in dir
func writeTestConfig(t *testing.T, dir string, threads int) string {
	t.Helper()
	path := filepath.Join(dir, "parabola.yaml")
	content := fmt.Sprintf(`
pool:
  thread_count: %d
tuning:
  workload_size: 10
  artifact: %s
log:
  level: error
`, threads, filepath.Join(dir, "tuning.yaml"))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644), "Failed to write test config file")
	return path
}

// execute runs the root command with args and returns its stdout
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := BuildCLI()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestBuildCLI(t *testing.T) {
	cmd := BuildCLI()

	assert.NotNil(t, cmd, "BuildCLI should return a non-nil command")
	assert.Equal(t, "parabola", cmd.Use, "Root command should be 'parabola'")
	assert.Equal(t, "1.0.0", cmd.Version, "Version should be 1.0.0")

	commands := cmd.Commands()
	assert.Len(t, commands, 4, "Should have 4 subcommands")

	commandNames := make(map[string]bool)
	for _, c := range commands {
		commandNames[c.Use] = true
	}
	assert.True(t, commandNames["tune"], "Should have 'tune' command")
	assert.True(t, commandNames["compute"], "Should have 'compute' command")
	assert.True(t, commandNames["run"], "Should have 'run' command")
	assert.True(t, commandNames["status"], "Should have 'status' command")

	configFlag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, configFlag, "Should have --config flag")
	assert.Equal(t, "c", configFlag.Shorthand)
	assert.Equal(t, "", configFlag.DefValue, "Default config is built in")
}

func TestBuildTuneCommand(t *testing.T) {
	cmd := buildTuneCommand()

	assert.Equal(t, "tune", cmd.Use)
	for _, name := range []string{"ephe", "out", "max-threads"} {
		assert.NotNil(t, cmd.Flags().Lookup(name), "Should have --%s flag", name)
	}
	assert.NotNil(t, cmd.RunE, "RunE function should be set")
}

func TestBuildComputeCommand(t *testing.T) {
	cmd := buildComputeCommand()

	assert.Equal(t, "compute", cmd.Use)
	fileFlag := cmd.Flags().Lookup("file")
	require.NotNil(t, fileFlag, "Should have --file flag")
	assert.Equal(t, "f", fileFlag.Shorthand, "Should have -f shorthand")
	outFlag := cmd.Flags().Lookup("out")
	require.NotNil(t, outFlag, "Should have --out flag")
	assert.Equal(t, "o", outFlag.Shorthand, "Should have -o shorthand")
}

func TestBuildRunCommand(t *testing.T) {
	cmd := buildRunCommand()

	assert.Equal(t, "run", cmd.Use)
	assert.Contains(t, cmd.Short, "Start", "Short description should mention 'Start'")
	assert.NotNil(t, cmd.Flags().Lookup("duration"))
	assert.NotNil(t, cmd.RunE, "RunE function should be set")
}

func TestNewLogger(t *testing.T) {
	cfg := config.Default()
	cfg.Log.Format = "json"

	var buf bytes.Buffer
	logger, err := newLogger(cfg, &buf)
	require.NoError(t, err)
	logger.Info("hello", "threads", 4)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "hello", entry["msg"])
	assert.Equal(t, float64(4), entry["threads"])

	cfg.Log.Level = "chatty"
	_, err = newLogger(cfg, &buf)
	assert.Error(t, err)
}

func TestComputeCommand(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeTestConfig(t, dir, 2)

	reqs := make([]types.Request, 25)
	for i := range reqs {
		reqs[i] = types.Request{JD: 2451545.0 + float64(i), Target: i % 10, Flags: 256}
	}
	reqs[5].Target = 42
	data, err := json.Marshal(reqs)
	require.NoError(t, err)
	inPath := filepath.Join(dir, "requests.json")
	require.NoError(t, os.WriteFile(inPath, data, 0644))
	outPath := filepath.Join(dir, "results.json")

	_, err = execute(t, "-c", cfgPath, "compute", "-f", inPath, "-o", outPath)
	require.NoError(t, err)

	raw, err := os.ReadFile(outPath)
	require.NoError(t, err)
	var results []types.Result
	require.NoError(t, json.Unmarshal(raw, &results))
	require.Len(t, results, 25)
	for i, r := range results {
		assert.Equal(t, reqs[i].Target, r.Target)
		if i == 5 {
			assert.Less(t, r.ErrCode, 0)
			assert.NotEmpty(t, r.ErrMsg)
			continue
		}
		assert.Equal(t, 0, r.ErrCode, r.ErrMsg)
	}
}

func TestComputeCommand_Stdout(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeTestConfig(t, dir, 1)
	inPath := filepath.Join(dir, "one.json")
	require.NoError(t, os.WriteFile(inPath, []byte(`[{"jd": 2451545.0, "target": 4, "flags": 0}]`), 0644))

	out, err := execute(t, "-c", cfgPath, "compute", "-f", inPath)
	require.NoError(t, err)

	var results []types.Result
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	require.Len(t, results, 1)
	assert.Equal(t, 4, results[0].Target)
}

func TestComputeCommand_InvalidInput(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeTestConfig(t, dir, 1)

	_, err := execute(t, "-c", cfgPath, "compute", "-f", filepath.Join(dir, "missing.json"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{not json"), 0644))
	_, err = execute(t, "-c", cfgPath, "compute", "-f", bad)
	assert.Error(t, err)
}

func TestTuneCommand(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeTestConfig(t, dir, 0)
	artifact := filepath.Join(dir, "out", "tuned.yaml")

	out, err := execute(t, "-c", cfgPath, "tune", "--max-threads", "2", "--out", artifact)
	require.NoError(t, err)
	assert.Contains(t, out, "Optimal thread count")

	a, ok, err := config.NewArtifactStore(artifact).Load()
	require.NoError(t, err)
	require.True(t, ok)
	assert.GreaterOrEqual(t, a.ThreadCount, 1)
	assert.LessOrEqual(t, a.ThreadCount, 2)
}

func TestRunCommand_Duration(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeTestConfig(t, dir, 2)

	out, err := execute(t, "-c", cfgPath, "run", "--duration", "300ms", "--steps", "5")
	require.NoError(t, err)
	assert.Contains(t, out, "Computed")
}

func TestShowStatus(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeTestConfig(t, dir, 3)

	out, err := execute(t, "-c", cfgPath, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Platform concurrency")
	assert.Contains(t, out, "Not tuned")

	require.NoError(t, config.NewArtifactStore(filepath.Join(dir, "tuning.yaml")).Write(config.Artifact{ThreadCount: 6}))
	out, err = execute(t, "-c", cfgPath, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Thread Count:  6")
}

func TestShowStatus_BadConfig(t *testing.T) {
	_, err := execute(t, "-c", filepath.Join(t.TempDir(), "missing.yaml"), "status")
	assert.Error(t, err)
}
