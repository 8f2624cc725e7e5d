package review

import (
	"context"
	"fmt"
)

// PriorAggregate summarizes the comparable window before current. It returns
// false, with an all-zero aggregate, when that window starts before the
// business's first review.
func PriorAggregate(ctx context.Context, src ReviewSource, biz BusinessID, current Window, table *ThemeTable) (Aggregate, bool, error) {
	earliest, err := src.EarliestReviewDate(ctx, biz)
	if err != nil {
		return Aggregate{}, false, fmt.Errorf("earliest review: %w", err)
	}
	prior, ok := PriorWindow(current, earliest)
	if !ok {
		return Aggregate{BusinessID: biz, Window: prior}, false, nil
	}
	records, err := src.ReviewsInRange(ctx, biz, prior.Start, prior.End)
	if err != nil {
		return Aggregate{}, false, fmt.Errorf("prior reviews: %w", err)
	}
	return Summarize(biz, prior, Analyze(records, table), table), true, nil
}

// LiveReport reads and analyzes the reviews of window and compares them with
// the prior window. The analyzed current reviews are returned for keyword
// mining.
func LiveReport(ctx context.Context, src ReviewSource, biz BusinessID, window Window, table *ThemeTable) (Report, []Analyzed, error) {
	records, err := src.ReviewsInRange(ctx, biz, window.Start, window.End)
	if err != nil {
		return Report{}, nil, fmt.Errorf("reviews: %w", err)
	}
	analyzed := Analyze(records, table)
	current := Summarize(biz, window, analyzed, table)

	prior, ok, err := PriorAggregate(ctx, src, biz, window, table)
	if err != nil {
		return Report{}, nil, err
	}
	return NewReport(current, prior, !ok, table), analyzed, nil
}
