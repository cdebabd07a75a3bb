package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lguibr/actorkernel/internal/moduletest"
)

func writeSelfTestImage(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "selftest.img")
	require.NoError(t, os.WriteFile(path, moduletest.BuildSelfTestImage(), 0o644))
	return path
}

func TestInspectPrintsHeaderFields(t *testing.T) {
	path := writeSelfTestImage(t)

	var out bytes.Buffer
	inspectCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"inspect", path})
	require.NoError(t, rootCmd.Execute())

	require.Contains(t, out.String(), moduletest.SelfTestName)
	require.Contains(t, out.String(), "hotswap=true")
	require.Contains(t, out.String(), moduletest.SelfTestFunction)
}

func TestLoadReportsLoadedModule(t *testing.T) {
	path := writeSelfTestImage(t)

	var out bytes.Buffer
	loadCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"load", path})
	require.NoError(t, rootCmd.Execute())

	require.Contains(t, out.String(), moduletest.SelfTestName)
	require.Contains(t, out.String(), "state=Running")
}

func TestParseLevelRejectsUnknownLevel(t *testing.T) {
	_, err := parseLevel("nonsense")
	require.Error(t, err)
}
