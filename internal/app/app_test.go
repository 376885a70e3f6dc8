package app

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/quarry/internal/engine"
	"github.com/vk/quarry/internal/target"
)

func writeProjectFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func seedProject(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeProjectFile(t, root, "lib/greeting.txt", "hello")
	writeProjectFile(t, root, "lib/BUILD.hcl", `
library "texts" {
  srcs = ["*.txt"]
}
`)
	writeProjectFile(t, root, "app/BUILD.hcl", `
genrule "shout" {
  cmd  = "sh -c \"tr a-z A-Z < $QUARRY_SRCS > $QUARRY_OUT\""
  out  = "shout.txt"
  srcs = ["message.txt"]
  deps = ["//lib:texts"]
}

package "dist" {
  deps = [":shout"]
  meta = { version = "1" }
}
`)
	writeProjectFile(t, root, "app/message.txt", "make it loud")
	return root
}

func TestApp_BuildAndRebuild(t *testing.T) {
	root := seedProject(t)

	testApp, _ := SetupAppTest(t, Config{RootDir: root})
	result, err := testApp.Run(context.Background())
	require.NoError(t, err)
	require.True(t, result.Success())
	assert.Equal(t, 0, result.ExitCode())

	shout := result.Outcomes[target.MustParse("//app:shout")]
	require.NotNil(t, shout)
	assert.Equal(t, engine.Built, shout.State)

	content, err := os.ReadFile(filepath.Join(root, "quarry-out", "app", "shout.txt"))
	require.NoError(t, err)
	assert.Equal(t, "MAKE IT LOUD", string(content))
	assert.FileExists(t, filepath.Join(root, "quarry-out", "app", "dist.qpkg"))

	// A fresh app over the unchanged tree answers everything from cache.
	secondApp, out := SetupAppTest(t, Config{RootDir: root})
	result, err = secondApp.Run(context.Background())
	require.NoError(t, err)
	require.True(t, result.Success())
	assert.Equal(t, 0, result.StepsExecuted)
	for _, o := range result.Outcomes {
		assert.Equal(t, engine.Reused, o.State, o.Target.String())
	}
	assert.Contains(t, out.String(), "REUSED  //app:shout")
	assert.Contains(t, out.String(), "0 steps executed")
}

func TestApp_RequestedTarget(t *testing.T) {
	root := seedProject(t)

	testApp, _ := SetupAppTest(t, Config{RootDir: root})
	result, err := testApp.Run(context.Background(), "//lib:texts")
	require.NoError(t, err)
	require.True(t, result.Success())

	require.Len(t, result.Outcomes, 1)
	assert.Contains(t, result.Outcomes, target.MustParse("//lib:texts"))
}

func TestApp_UnknownTarget(t *testing.T) {
	root := seedProject(t)

	testApp, _ := SetupAppTest(t, Config{RootDir: root})
	_, err := testApp.Run(context.Background(), "//does/not:exist")
	require.Error(t, err)
}

func TestApp_MalformedTargetArgument(t *testing.T) {
	root := seedProject(t)

	testApp, _ := SetupAppTest(t, Config{RootDir: root})
	_, err := testApp.Run(context.Background(), "lib:texts")
	require.Error(t, err)
}

func TestApp_FailedRuleReportedInSummary(t *testing.T) {
	root := t.TempDir()
	writeProjectFile(t, root, "BUILD.hcl", `
genrule "broken" {
  cmd = "false"
  out = "never.txt"
}

genrule "downstream" {
  cmd  = "true"
  out  = "also-never.txt"
  deps = [":broken"]
}
`)

	testApp, out := SetupAppTest(t, Config{RootDir: root})
	result, err := testApp.Run(context.Background())
	require.NoError(t, err)
	assert.False(t, result.Success())
	assert.Equal(t, 1, result.ExitCode())

	assert.Equal(t, engine.Failed, result.Outcomes[target.MustParse("//:broken")].State)
	assert.Equal(t, engine.Blocked, result.Outcomes[target.MustParse("//:downstream")].State)
	assert.Contains(t, out.String(), "build failed: //:broken")
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

func TestApp_MetricsServerStartsOnce(t *testing.T) {
	root := seedProject(t)
	port := freePort(t)

	testApp, out := SetupAppTest(t, Config{RootDir: root, MetricsPort: port})

	// Two runs on one App must share a single metrics listener; before the
	// guard the second run tried to bind the port again and logged a bind
	// failure.
	for i := 0; i < 2; i++ {
		result, err := testApp.Run(context.Background())
		require.NoError(t, err)
		require.True(t, result.Success())
	}

	require.Eventually(t, func() bool {
		resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/health", port))
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	assert.NotContains(t, out.String(), "Metrics server failed")
}

func TestNewApp_BadBuildFile(t *testing.T) {
	root := t.TempDir()
	writeProjectFile(t, root, "BUILD.hcl", `genrule "broken" {`)

	cfg, err := NewConfig(Config{RootDir: root})
	require.NoError(t, err)
	_, err = NewApp(&SafeBuffer{}, cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load build files")
}

func TestNewConfig(t *testing.T) {
	_, err := NewConfig(Config{})
	require.Error(t, err)

	cfg, err := NewConfig(Config{RootDir: "/proj"})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/proj", "quarry-out"), cfg.OutDir)
	assert.Equal(t, filepath.Join("/proj", ".quarry-cache"), cfg.CacheDir)

	cfg, err = NewConfig(Config{RootDir: "/proj", OutDir: "/elsewhere/out"})
	require.NoError(t, err)
	assert.Equal(t, "/elsewhere/out", cfg.OutDir)
}
