package remap

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shirerpeton/diarEval/internal/common"
)

// IncompleteMappingError lists the observed labels a mapping has no entry for.
type IncompleteMappingError struct {
	Labels []string
}

func (e *IncompleteMappingError) Error() string {
	return fmt.Sprintf("no category mapping for labels: %s", strings.Join(e.Labels, ", "))
}

func (e *IncompleteMappingError) Is(target error) bool {
	return target == common.ErrIncompleteMapping
}

// Remap rewrites every label of tiers through mapping, concatenating the
// segments of labels that collapse into the same category. Labels are merged
// in sorted order. tiers is left untouched.
func Remap(tiers common.TierMap, mapping common.Mapping) (common.TierMap, error) {
	var missing []string
	for label := range tiers {
		if _, ok := mapping[label]; !ok {
			missing = append(missing, label)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, &IncompleteMappingError{Labels: missing}
	}

	result := make(common.TierMap)
	for _, label := range tiers.Labels() {
		category := mapping[label]
		result[category] = append(result[category], tiers[label]...)
	}
	return result, nil
}

func Identity(tiers common.TierMap) common.Mapping {
	mapping := make(common.Mapping, len(tiers))
	for label := range tiers {
		mapping[label] = label
	}
	return mapping
}
