package installer

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/nebari-dev/rattler-go/internal/pkgrecord"
)

// EntryPoint is one noarch-python console/gui script to materialize,
// in conda's "name = module:function" convention.
type EntryPoint struct {
	Name     string
	Module   string
	Function string
}

// ParseEntryPoint parses "jupyter = jupyter_core.command:main".
func ParseEntryPoint(spec string) (EntryPoint, bool) {
	parts := strings.SplitN(spec, "=", 2)
	if len(parts) != 2 {
		return EntryPoint{}, false
	}
	name := strings.TrimSpace(parts[0])
	target := strings.TrimSpace(parts[1])
	modFunc := strings.SplitN(target, ":", 2)
	if len(modFunc) != 2 {
		return EntryPoint{}, false
	}
	return EntryPoint{Name: name, Module: strings.TrimSpace(modFunc[0]), Function: strings.TrimSpace(modFunc[1])}, true
}

// WriteUnixEntryPoint generates a shebang wrapper script at
// <binDir>/<name> that imports the target module and calls its
// function via sys.exit, per spec §4.I step 4.
func WriteUnixEntryPoint(binDir, pythonExe string, ep EntryPoint) (pkgrecord.PathEntry, error) {
	path := filepath.Join(binDir, ep.Name)
	script := fmt.Sprintf("#!%s\nimport sys\nfrom %s import %s\nif __name__ == '__main__':\n    sys.exit(%s())\n",
		pythonExe, ep.Module, ep.Function, ep.Function)

	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		return pkgrecord.PathEntry{}, err
	}
	sha, size, err := hashExistingFile(path)
	if err != nil {
		return pkgrecord.PathEntry{}, err
	}
	return pkgrecord.PathEntry{
		RelativePath: relPathFrom(binDir, path),
		PathType:     pkgrecord.PathPythonEntryPointUnix,
		SHA256:       sha,
		Size:         size,
	}, nil
}

// WriteWindowsEntryPoint generates the ".exe" + "-script.py" launcher
// pair Windows noarch-python entry points use: the ".exe" is a tiny
// generic stub (not produced here, since Conda ships a prebuilt one
// per architecture); this generates the script half and records both
// synthetic paths so the installer's caller can copy the matching
// prebuilt stub into place.
func WriteWindowsEntryPoint(binDir string, ep EntryPoint) (script, exe pkgrecord.PathEntry, err error) {
	scriptPath := filepath.Join(binDir, ep.Name+"-script.py")
	content := fmt.Sprintf("import sys\nfrom %s import %s\nif __name__ == '__main__':\n    sys.exit(%s())\n",
		ep.Module, ep.Function, ep.Function)

	if err := os.WriteFile(scriptPath, []byte(content), 0o644); err != nil {
		return pkgrecord.PathEntry{}, pkgrecord.PathEntry{}, err
	}
	sha, size, err := hashExistingFile(scriptPath)
	if err != nil {
		return pkgrecord.PathEntry{}, pkgrecord.PathEntry{}, err
	}

	script = pkgrecord.PathEntry{
		RelativePath: relPathFrom(binDir, scriptPath),
		PathType:     pkgrecord.PathHardlink,
		SHA256:       sha,
		Size:         size,
	}
	exe = pkgrecord.PathEntry{
		RelativePath: relPathFrom(binDir, filepath.Join(binDir, ep.Name+".exe")),
		PathType:     pkgrecord.PathPythonEntryPointExe,
	}
	return script, exe, nil
}

func relPathFrom(base, path string) string {
	rel, err := filepath.Rel(filepath.Dir(base), path)
	if err != nil {
		return path
	}
	return rel
}
