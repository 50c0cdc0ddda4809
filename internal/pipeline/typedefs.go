package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/vbwagner/client-code/internal/types"
)

// stepFindTypedefs extracts typedef names from the installed binaries'
// debug information and writes the sorted list to the log directory. The
// list is advisory output for downstream tooling; an empty result is a
// failure because it means the binaries carried no debug info at all.
func stepFindTypedefs(env *Env) types.StepResult {
	binDir := filepath.Join(env.InstallDir, "bin")
	entries, err := os.ReadDir(binDir)
	if err != nil {
		return types.StepResult{Status: 1, Log: []string{fmt.Sprintf("*** read %s: %v", binDir, err)}}
	}

	seen := make(map[string]struct{})
	var res types.StepResult
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		objRes := run(env, binDir, "objdump", "-W", e.Name())
		if objRes.Status != 0 {
			// Not every installed file is an object file; skip quietly.
			continue
		}
		collectTypedefs(objRes.Log, seen)
	}

	if len(seen) == 0 {
		res.Status = 1
		res.Log = append(res.Log, "*** no typedefs found: binaries built without debug info?")
		return res
	}

	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)

	outPath := filepath.Join(env.LogDir, "typedefs.list")
	if err := os.WriteFile(outPath, []byte(strings.Join(names, "\n")+"\n"), 0o644); err != nil {
		res.Status = 1
		res.Log = append(res.Log, fmt.Sprintf("*** write %s: %v", outPath, err))
		return res
	}
	res.Log = append(res.Log, fmt.Sprintf("%d typedefs written to %s", len(names), outPath))
	return res
}

// collectTypedefs scans objdump -W output for DWARF typedef entries and
// records their names. A typedef appears as a DW_TAG_typedef line followed
// by a DW_AT_name attribute, e.g.:
//
//	<1><2f4>: Abbrev Number: 4 (DW_TAG_typedef)
//	   <2f5>   DW_AT_name  : size_t
func collectTypedefs(lines []string, seen map[string]struct{}) {
	pending := false
	for _, line := range lines {
		if strings.Contains(line, "DW_TAG_typedef") {
			pending = true
			continue
		}
		if !pending {
			continue
		}
		if !strings.Contains(line, "DW_AT_name") {
			// A new DIE header ends the pending typedef entry.
			if strings.Contains(line, "Abbrev Number") {
				pending = false
			}
			continue
		}
		pending = false
		idx := strings.LastIndexByte(line, ':')
		if idx < 0 {
			continue
		}
		name := strings.TrimSpace(line[idx+1:])
		if name != "" && !strings.ContainsAny(name, " \t") {
			seen[name] = struct{}{}
		}
	}
}
