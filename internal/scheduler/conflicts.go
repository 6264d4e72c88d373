package scheduler

import (
	"sort"

	"github.com/aristath/swarm/internal/ledger"
)

// FindConflicts compares a candidate task's owned files against the owned
// files of the session's currently claimed tasks. Returns the overlapping
// file paths and the ids of the claimed tasks involved, both sorted.
//
// Ownership is advisory: overlaps produce a warning event, never a lock.
func FindConflicts(candidate *ledger.Task, claimed []*ledger.Task) (files []string, taskIDs []string) {
	if len(candidate.FilesOwned) == 0 {
		return nil, nil
	}

	owned := make(map[string]bool, len(candidate.FilesOwned))
	for _, f := range candidate.FilesOwned {
		owned[f] = true
	}

	fileSet := map[string]bool{}
	idSet := map[string]bool{}
	for _, other := range claimed {
		if other.ID == candidate.ID {
			continue
		}
		for _, f := range other.FilesOwned {
			if owned[f] {
				fileSet[f] = true
				idSet[other.ID] = true
			}
		}
	}

	if len(fileSet) == 0 {
		return nil, nil
	}

	for f := range fileSet {
		files = append(files, f)
	}
	for id := range idSet {
		taskIDs = append(taskIDs, id)
	}
	sort.Strings(files)
	sort.Strings(taskIDs)
	return files, taskIDs
}
