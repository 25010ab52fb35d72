// Package envutil builds the environment handed to stdio MCP servers.
package envutil

import (
	"context"
	"os"
	"os/exec"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"
)

// SkipPathPatchEnv disables the login-shell PATH lookup when set.
const SkipPathPatchEnv = "MCPBROKER_SKIP_PATH_PATCH"

const loginShellTimeout = 2 * time.Second

var loginPaths sync.Map // shell path -> loginPath

type loginPath struct {
	value string
	err   error
}

// ServerEnv returns base with overrides applied. Each overridden key appears
// once, and override entries are appended in key order.
func ServerEnv(base []string, overrides map[string]string) []string {
	out := make([]string, 0, len(base)+len(overrides))
	for _, entry := range base {
		key, _, _ := strings.Cut(entry, "=")
		if _, replaced := overrides[key]; replaced {
			continue
		}
		out = append(out, entry)
	}

	keys := make([]string, 0, len(overrides))
	for key := range overrides {
		if key != "" {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	for _, key := range keys {
		out = append(out, key+"="+overrides[key])
	}
	return PatchPATH(out)
}

// PatchPATH prepends the login shell PATH on macOS when the process was not
// started from a terminal, so that tools such as uvx or npx resolve.
func PatchPATH(env []string) []string {
	if runtime.GOOS != "darwin" {
		return env
	}
	if Lookup(env, SkipPathPatchEnv) != "" || Lookup(env, "TERM") != "" {
		return env
	}
	shell := Lookup(env, "SHELL")
	if shell == "" {
		shell = "/bin/zsh"
	}
	login, err := loginShellPATH(shell)
	if err != nil || login == "" {
		return env
	}
	current := Lookup(env, "PATH")
	merged := MergePathList(login, current)
	if merged == current {
		return env
	}
	return Set(env, "PATH", merged)
}

// Lookup returns the last value for key, trimmed.
func Lookup(env []string, key string) string {
	var value string
	for _, entry := range env {
		if k, v, ok := strings.Cut(entry, "="); ok && k == key {
			value = v
		}
	}
	return strings.TrimSpace(value)
}

// Set replaces every entry for key with a single key=value at the end.
func Set(env []string, key, value string) []string {
	out := make([]string, 0, len(env)+1)
	for _, entry := range env {
		if k, _, _ := strings.Cut(entry, "="); k == key {
			continue
		}
		out = append(out, entry)
	}
	return append(out, key+"="+value)
}

// MergePathList joins path lists, keeping the first occurrence of each entry.
func MergePathList(lists ...string) string {
	seen := make(map[string]struct{})
	var out []string
	for _, list := range lists {
		for _, entry := range filepathList(list) {
			if _, dup := seen[entry]; dup {
				continue
			}
			seen[entry] = struct{}{}
			out = append(out, entry)
		}
	}
	return strings.Join(out, string(os.PathListSeparator))
}

func filepathList(list string) []string {
	var out []string
	for _, entry := range strings.Split(list, string(os.PathListSeparator)) {
		if entry = strings.TrimSpace(entry); entry != "" {
			out = append(out, entry)
		}
	}
	return out
}

func loginShellPATH(shell string) (string, error) {
	if cached, ok := loginPaths.Load(shell); ok {
		entry := cached.(loginPath)
		return entry.value, entry.err
	}
	ctx, cancel := context.WithTimeout(context.Background(), loginShellTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, shell, "-lc", "echo $PATH")
	cmd.Env = append(os.Environ(), "LANG=C", "LC_ALL=C")
	output, err := cmd.Output()
	entry := loginPath{value: strings.TrimSpace(string(output)), err: err}
	loginPaths.Store(shell, entry)
	return entry.value, entry.err
}
