package testutil

import (
	"testing"

	"github.com/specialistvlad/datagridgo/internal/engine"
	"github.com/stretchr/testify/require"
)

// AssertStepState checks the final state the stats report for a step.
func AssertStepState(t *testing.T, result *HarnessResult, stepName string, want engine.State) {
	t.Helper()
	require.NotNil(t, result.Stats, "the run produced no stats")

	for _, n := range result.Stats.Nodes {
		if n.Name == stepName {
			require.Equal(t, want, n.State, "unexpected state for step '%s'", stepName)
			return
		}
	}
	require.Failf(t, "step not found", "no stats recorded for step '%s'", stepName)
}

// OutputIDs returns the ids of the output records, in order.
func OutputIDs(result *HarnessResult) []string {
	ids := make([]string, 0, len(result.Output))
	for _, r := range result.Output {
		ids = append(ids, r.ID)
	}
	return ids
}
