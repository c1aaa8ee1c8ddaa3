package privacy

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/davidleathers/healthcare-security-pipeline/internal/domain/errors"
	"github.com/davidleathers/healthcare-security-pipeline/internal/domain/privacy"
	"github.com/davidleathers/healthcare-security-pipeline/internal/metrics"
)

func (e *engine) ApplyLDiversity(ctx context.Context, dataset *privacy.AnonymizedDataset, sensitiveAttributes []string, l, k int) (*privacy.AnonymizedDataset, error) {
	if dataset == nil {
		return nil, errors.NewValidationError("MISSING_DATASET", "dataset is required")
	}
	if l < 1 && e.config.DefaultL > 0 {
		l = e.config.DefaultL
	}
	if k < 1 && e.config.DefaultK > 0 {
		k = e.config.DefaultK
	}
	if l < 1 {
		return nil, errors.NewValidationError("INVALID_L", "l must be a positive integer")
	}
	if len(sensitiveAttributes) == 0 {
		return nil, errors.NewValidationError("MISSING_SENSITIVE_ATTRIBUTES",
			"at least one sensitive attribute is required")
	}

	quasiIdentifiers := dataset.Metadata.GeneralizedFields

	groups := make(map[string][]int)
	for i, record := range dataset.Records {
		key := groupKey(record, quasiIdentifiers)
		groups[key] = append(groups[key], i)
	}

	out := &privacy.AnonymizedDataset{
		Records:  make([]privacy.Record, 0, len(dataset.Records)),
		Metadata: dataset.Metadata,
	}
	out.Metadata.LDiversity = 0

	suppressed := 0
	minDiversity := 0
	for _, key := range sortedKeys(groups) {
		indexes := groups[key]

		group := make([]privacy.Record, 0, len(indexes))
		for _, idx := range indexes {
			group = append(group, dataset.Records[idx].Clone())
		}

		diverse := groupDiversity(group, sensitiveAttributes)
		if diverse < l {
			// Truncating string sensitive values coarsens them, which
			// can merge near-duplicates without destroying the group.
			truncateSensitive(group, sensitiveAttributes)
			diverse = groupDiversity(group, sensitiveAttributes)
		}

		// Truncation must not silently break the k guarantee that the
		// prior pass established.
		if diverse < l || len(group) < k {
			suppressed += len(group)
			continue
		}

		out.Records = append(out.Records, group...)
		if minDiversity == 0 || diverse < minDiversity {
			minDiversity = diverse
		}
	}

	out.Metadata.AnonymizedCount = len(out.Records)
	out.Metadata.SuppressedCount = dataset.Metadata.SuppressedCount + suppressed
	out.Metadata.LDiversity = minDiversity
	if out.Metadata.OriginalCount > 0 {
		out.Metadata.InformationLoss = 1 - float64(out.Metadata.AnonymizedCount)/float64(out.Metadata.OriginalCount)
	}
	out.Metadata.DataUtility = 1 - out.Metadata.InformationLoss

	if suppressed > 0 {
		metrics.RecordSuppressedRecords(suppressed)
		e.logger.Debug("l-diversity suppressed homogeneous groups",
			zap.Int("suppressed", suppressed),
			zap.Int("l", l))
	}
	return out, nil
}

// groupDiversity counts the smallest number of distinct values any
// sensitive attribute takes within the group.
func groupDiversity(group []privacy.Record, sensitiveAttributes []string) int {
	min := 0
	for _, attr := range sensitiveAttributes {
		distinct := make(map[string]struct{})
		for _, record := range group {
			distinct[fmt.Sprintf("%v", record[attr])] = struct{}{}
		}
		if min == 0 || len(distinct) < min {
			min = len(distinct)
		}
	}
	return min
}

func truncateSensitive(group []privacy.Record, sensitiveAttributes []string) {
	for _, record := range group {
		for _, attr := range sensitiveAttributes {
			if s, ok := record[attr].(string); ok && len(s) > sensitiveTruncateLen {
				record[attr] = s[:sensitiveTruncateLen]
			}
		}
	}
}
