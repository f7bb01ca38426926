// Package classify provides the label classifiers the processing pipeline
// streams rows through, plus the optional theme-name mapping applied to
// model output labels.
package classify

import (
	"context"
	"errors"
)

// ErrClassificationFailed wraps unrecoverable classifier errors. The
// pipeline moves the record to Failed and does not retry.
var ErrClassificationFailed = errors.New("classification failed")

// Classifier produces a label for one text value. Implementations may be
// slow (seconds per call); callers must never hold registry transactions
// across a Classify call.
type Classifier interface {
	Classify(ctx context.Context, text string) (string, error)
}

// Func adapts a plain function to the Classifier interface.
type Func func(ctx context.Context, text string) (string, error)

// Classify implements Classifier.
func (f Func) Classify(ctx context.Context, text string) (string, error) {
	return f(ctx, text)
}
