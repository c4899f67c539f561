package pathutil

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strings"
)

// Expand resolves $VARS and a leading "~" in a configured file location.
// Blank input stays blank so optional paths can be left unset.
func Expand(path string) (string, error) {
	p := os.ExpandEnv(strings.TrimSpace(path))
	if p == "" {
		return "", nil
	}

	rest, ok := strings.CutPrefix(p, "~")
	if !ok || (rest != "" && rest[0] != '/') {
		return filepath.Clean(p), nil
	}

	home, err := homeDir()
	if err != nil {
		return "", fmt.Errorf("expand %q: %w", path, err)
	}
	return filepath.Join(home, strings.TrimPrefix(rest, "/")), nil
}

// ExpandInPlace rewrites every non-empty path it is given and stops at the
// first failure.
func ExpandInPlace(paths ...*string) error {
	for _, p := range paths {
		if p == nil || strings.TrimSpace(*p) == "" {
			continue
		}
		expanded, err := Expand(*p)
		if err != nil {
			return err
		}
		*p = expanded
	}
	return nil
}

// homeDir prefers os.UserHomeDir, then the passwd entry. A HOME that still
// starts with "~" is treated as unset.
func homeDir() (string, error) {
	var candidates []string
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, home)
	}
	if u, err := user.Current(); err == nil {
		candidates = append(candidates, u.HomeDir)
	}

	for _, c := range candidates {
		c = strings.TrimSpace(c)
		if c != "" && !strings.HasPrefix(c, "~") {
			return c, nil
		}
	}
	return "", fmt.Errorf("home directory is not resolvable")
}

// EnsureParentDir creates the directory that will hold a state file such as
// the dedupe ledger or the decision log.
func EnsureParentDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dir %s: %w", dir, err)
	}
	return nil
}
