package app

import (
	"sort"

	"github.com/specialistvlad/pipegrid/internal/pipeline"
)

func sortedResultKeys(results map[string]pipeline.JobResult) []string {
	keys := make([]string, 0, len(results))
	for k := range results {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
