package classification

import "errors"

// ErrUnknownClassification is returned when a classification is not one of
// the five defined tiers.
var ErrUnknownClassification = errors.New("unknown classification")
