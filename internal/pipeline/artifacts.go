package pipeline

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/vbwagner/client-code/internal/types"
)

// maxArtifactLines caps how much of one side file is appended to a step
// log. Only the tail is kept; the full files still end up in the report's
// log archive.
const maxArtifactLines = 1000

// regressionArtifacts are the side files a failing test step scatters
// through the build tree.
var regressionArtifacts = map[string]struct{}{
	"regression.diffs": {},
	"regression.out":   {},
	"initdb.log":       {},
	"postmaster.log":   {},
}

// appendRegressionArtifacts walks the build tree for known failure
// artifacts and appends their tails to the step log, each under a header
// naming its path.
func appendRegressionArtifacts(env *Env, res *types.StepResult) {
	_ = filepath.WalkDir(env.BuildDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable subtree; keep what we have
		}
		if d.IsDir() {
			return nil
		}
		if _, ok := regressionArtifacts[d.Name()]; !ok {
			return nil
		}
		appendFileTail(env, res, path)
		return nil
	})
}

// appendSideFile appends one side file to the step log. A relative path
// is resolved against the build directory; a missing file is silently
// skipped.
func appendSideFile(env *Env, res *types.StepResult, path string) {
	if !filepath.IsAbs(path) {
		path = filepath.Join(env.BuildDir, path)
	}
	appendFileTail(env, res, path)
}

func appendFileTail(env *Env, res *types.StepResult, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}

	rel := path
	if r, relErr := filepath.Rel(env.BuildDir, path); relErr == nil {
		rel = r
	}

	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	res.Log = append(res.Log, "========== "+rel+" ==========")
	if len(lines) > maxArtifactLines {
		lines = lines[len(lines)-maxArtifactLines:]
	}
	res.Log = append(res.Log, lines...)
}
