package transfer

import (
	"fmt"
	"sort"

	"github.com/rowjay/cassandra-maint-utility/internal/snapshot"
)

// Policy decides what happens when an incoming SSTable group collides
// with one already present in the destination table directory.
type Policy string

const (
	// PolicyPreserve rewrites the incoming generation number so both
	// file groups survive.
	PolicyPreserve Policy = "preserve"
	// PolicyOverwrite replaces the existing files unconditionally.
	PolicyOverwrite Policy = "overwrite"
)

// Step relocates one file from the scratch area into the destination
// table directory.
type Step struct {
	Source string // filename in the scratch directory
	Target string // filename in the destination directory
}

// Plan is the ordered relocation plan for one table. Renames are
// decided per file group, never per file, so a group can never end up
// partially renamed.
type Plan struct {
	Steps []Step
}

// Renamed reports whether any step changes a filename.
func (p Plan) Renamed() bool {
	for _, s := range p.Steps {
		if s.Source != s.Target {
			return true
		}
	}
	return false
}

// BuildPlan computes the relocation plan for one table directory given
// the freshly copied incoming filenames and the filenames already
// present at the destination.
func BuildPlan(incoming, existing []string, policy Policy) (Plan, error) {
	existingNames := map[string]bool{}
	existingGroups := map[string]bool{}
	takenGens := map[int]bool{}
	for _, name := range existing {
		existingNames[name] = true
		if d, ok := snapshot.Parse(name); ok {
			existingGroups[d.GroupKey()] = true
			takenGens[d.Generation] = true
		}
	}

	// Group incoming files so a rewritten generation applies to every
	// component of the group.
	groups := map[string][]incomingFile{}
	var order []string
	for _, name := range incoming {
		d, ok := snapshot.Parse(name)
		key := name // unparseable files form singleton groups
		if ok {
			key = d.GroupKey()
			takenGens[d.Generation] = true
		}
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], incomingFile{name: name, desc: d, parsed: ok})
	}
	sort.Strings(order)

	plan := Plan{}
	for _, key := range order {
		files := groups[key]
		// A group collides when the destination holds any component of
		// the same group, not only an identical filename. A partial
		// group at the destination still forces the rename.
		collides := false
		if files[0].parsed {
			collides = existingGroups[files[0].desc.GroupKey()]
		} else {
			collides = existingNames[files[0].name]
		}

		switch {
		case !collides || policy == PolicyOverwrite:
			for _, f := range files {
				plan.Steps = append(plan.Steps, Step{Source: f.name, Target: f.name})
			}
		default:
			// Preserve: one shared rewritten generation for the group.
			if !files[0].parsed {
				return Plan{}, fmt.Errorf("cannot preserve %s: not an sstable component name", files[0].name)
			}
			gen := snapshot.NextFreeGeneration(files[0].desc.Generation, takenGens)
			takenGens[gen] = true
			for _, f := range files {
				plan.Steps = append(plan.Steps, Step{
					Source: f.name,
					Target: f.desc.WithGeneration(gen).Filename(),
				})
			}
		}
	}
	return plan, nil
}

type incomingFile struct {
	name   string
	desc   snapshot.Descriptor
	parsed bool
}
