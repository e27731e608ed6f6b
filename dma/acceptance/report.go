package acceptance

import (
	"context"
	"fmt"

	"github.com/sarchlab/pciedma/datarecording"
)

// LoadResults reads back the case table of a sweep recording, ordered by case
// ID. With onlyFailed, passing cases are skipped.
func LoadResults(
	ctx context.Context,
	r datarecording.DataReader,
	onlyFailed bool,
) ([]CaseRow, error) {
	r.MapTable(CaseTable, CaseRow{})

	params := datarecording.QueryParams{OrderBy: "CaseID"}
	if onlyFailed {
		params.Where = "Passed = ?"
		params.Args = []any{false}
	}

	results, _, err := r.Query(ctx, CaseTable, params)
	if err != nil {
		return nil, fmt.Errorf("load results: %w", err)
	}

	rows := make([]CaseRow, 0, len(results))
	for _, res := range results {
		rows = append(rows, *res.(*CaseRow))
	}

	return rows, nil
}
