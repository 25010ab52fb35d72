package envutil

import (
	"os"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestServerEnv_OverridesReplaceBase(t *testing.T) {
	base := []string{"HOME=/root", "DB=old", "TERM=xterm", "DB=older"}

	env := ServerEnv(base, map[string]string{"DB": "./test.db", "API": "x"})

	assert.Equal(t, []string{"HOME=/root", "TERM=xterm", "API=x", "DB=./test.db"}, env)
}

func TestServerEnv_NoOverrides(t *testing.T) {
	base := []string{"A=1", "TERM=xterm"}
	assert.Equal(t, base, ServerEnv(base, nil))
}

func TestLookupReturnsLast(t *testing.T) {
	env := []string{"PATH=/bin", "A=1", "PATH=/usr/bin"}
	assert.Equal(t, "/usr/bin", Lookup(env, "PATH"))
	assert.Empty(t, Lookup(env, "MISSING"))
}

func TestSetReplacesAll(t *testing.T) {
	env := Set([]string{"A=1", "PATH=/bin", "B=2", "PATH=/usr/bin"}, "PATH", "/opt/bin")
	assert.Equal(t, []string{"A=1", "B=2", "PATH=/opt/bin"}, env)
}

func TestMergePathList(t *testing.T) {
	sep := string(os.PathListSeparator)
	got := MergePathList(
		strings.Join([]string{"/opt/bin", "/usr/bin"}, sep),
		strings.Join([]string{"/usr/bin", " ", "/bin"}, sep),
	)
	assert.Equal(t, strings.Join([]string{"/opt/bin", "/usr/bin", "/bin"}, sep), got)
	assert.Empty(t, MergePathList("", ""))
}

func TestPatchPATH_SkippedWithTerminal(t *testing.T) {
	env := []string{"PATH=/bin", "TERM=xterm-256color"}
	assert.Equal(t, env, PatchPATH(env))

	if runtime.GOOS != "darwin" {
		bare := []string{"PATH=/bin"}
		assert.Equal(t, bare, PatchPATH(bare))
	}
}
