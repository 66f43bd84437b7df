package storage

import (
	"fmt"
	"time"

	"bietl/internal/schema"
)

const (
	dateLayout     = "2006-01-02"
	dateTimeLayout = "2006-01-02 15:04:05"
)

// TypedRows returns a copy of rows where Date and DateTime cells held as
// canonical strings are parsed into time.Time. Binary protocols (Postgres
// COPY, SQL Server bulk copy) need real time values for those columns.
func TypedRows(t schema.Table, rows [][]any) ([][]any, error) {
	out := make([][]any, len(rows))
	for i, r := range rows {
		cp := make([]any, len(r))
		copy(cp, r)
		for j, c := range t.Columns {
			if j >= len(cp) {
				break
			}
			s, ok := cp[j].(string)
			if !ok {
				continue
			}
			var layout string
			switch c.Type {
			case schema.Date:
				layout = dateLayout
			case schema.DateTime:
				layout = dateTimeLayout
			default:
				continue
			}
			tm, err := time.Parse(layout, s)
			if err != nil {
				return nil, fmt.Errorf("storage: %s row %d column %s: %w", t.Name, i, c.Name, err)
			}
			cp[j] = tm
		}
		out[i] = cp
	}
	return out, nil
}
