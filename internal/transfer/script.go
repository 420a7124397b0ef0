package transfer

import (
	"fmt"
	"strings"
)

// RenderScript turns relocation plans into the helper shell script that
// executes on the remote host. Each plan moves files from its scratch
// directory into its destination table directory. The script fails on
// the first error, matching the fail-fast contract of the run.
func RenderScript(plans []TablePlan) string {
	var b strings.Builder
	b.WriteString("#!/bin/sh\n")
	b.WriteString("# generated by cmu; removed when the run completes\n")
	b.WriteString("set -eu\n")
	for _, tp := range plans {
		fmt.Fprintf(&b, "\n# %s.%s\n", tp.Keyspace, tp.Table)
		for _, step := range tp.Plan.Steps {
			fmt.Fprintf(&b, "mv -f %s %s\n",
				shellQuote(tp.ScratchDir+"/"+step.Source),
				shellQuote(tp.DestDir+"/"+step.Target))
		}
	}
	return b.String()
}

// TablePlan binds a relocation plan to its remote directories.
type TablePlan struct {
	Keyspace   string
	Table      string
	ScratchDir string
	DestDir    string
	Plan       Plan
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
