package planner

import (
	"fmt"

	"github.com/streamgov/streamgov-backend/internal/models"
)

// noneToken stands in for a value missing on one side of a diff.
const noneToken = "none"

// diffConfigs returns the keys whose values differ between current and
// target, rendered as "old→new" strings. Keys present on only one side use
// the none token for the missing value.
func diffConfigs(current, target map[string]string) map[string]string {
	out := map[string]string{}
	for key, want := range target {
		have, ok := current[key]
		if !ok {
			out[key] = renderChange(noneToken, want)
			continue
		}
		if have != want {
			out[key] = renderChange(have, want)
		}
	}
	for key, have := range current {
		if _, ok := target[key]; !ok {
			out[key] = renderChange(have, noneToken)
		}
	}
	return out
}

func renderChange(old, new string) string {
	return old + "→" + new
}

// validateTopicChange rejects mutations Kafka cannot perform online.
// Partition counts only grow; replication factor changes need a manual
// reassignment and are flagged as blocking errors.
func validateTopicChange(name string, currentPartitions, targetPartitions, currentRF, targetRF int) []models.Violation {
	var out []models.Violation
	if targetPartitions > 0 && targetPartitions < currentPartitions {
		out = append(out, models.Violation{
			Resource: name,
			RuleID:   "change.partition_decrease",
			Severity: models.SeverityError,
			Field:    "config.partitions",
			Message: fmt.Sprintf("partition count can only increase (current %d, requested %d)",
				currentPartitions, targetPartitions),
		})
	}
	if targetRF > 0 && currentRF > 0 && targetRF != currentRF {
		out = append(out, models.Violation{
			Resource: name,
			RuleID:   "change.replication_factor",
			Severity: models.SeverityError,
			Field:    "config.replication_factor",
			Message: fmt.Sprintf("replication factor change (%d→%d) requires a manual partition reassignment",
				currentRF, targetRF),
		})
	}
	return out
}
