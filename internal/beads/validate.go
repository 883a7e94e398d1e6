package beads

import (
	"strconv"

	"github.com/untoldecay/beadcore/internal/beaderr"
	"github.com/untoldecay/beadcore/internal/types"
	"github.com/untoldecay/beadcore/internal/utils"
)

// suggestionThreshold is the minimum similarity for a typo suggestion.
const suggestionThreshold = 0.75

// ValidateStatus checks a status against the recognized set. The
// projection itself is permissive; this is for callers that want to
// reject typos at the boundary, with a "did you mean" suggestion.
func ValidateStatus(status string) error {
	return validateEnum("status", status, types.ValidStatuses)
}

// ValidateKind checks an issue kind against the recognized set.
func ValidateKind(kind string) error {
	return validateEnum("kind", kind, types.ValidKinds)
}

// ValidatePriority checks a priority is in 0..3.
func ValidatePriority(priority int) error {
	if priority < 0 || priority > 3 {
		return &beaderr.InvalidEnumValue{
			Field:    "priority",
			Provided: strconv.Itoa(priority),
			Valid:    []string{"0", "1", "2", "3"},
		}
	}
	return nil
}

func validateEnum(field, value string, valid []string) error {
	for _, v := range valid {
		if value == v {
			return nil
		}
	}
	return &beaderr.InvalidEnumValue{
		Field:      field,
		Provided:   value,
		Suggestion: utils.ClosestMatch(value, valid, suggestionThreshold),
		Valid:      valid,
	}
}
