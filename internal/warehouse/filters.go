package warehouse

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/sawpanic/equityrun/internal/models"
)

// FiltersRepo loads scanner filter definitions. Filters are rows, not
// code: the parameters column is a JSONB bag of declarative bounds.
type FiltersRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

type filterRow struct {
	Name     string          `db:"name"`
	Enabled  bool            `db:"enabled"`
	Priority int             `db:"priority"`
	Sessions pq.StringArray  `db:"sessions"`
	Params   json.RawMessage `db:"parameters"`
}

// ListEnabled returns the enabled filter set ordered by priority.
// A filter whose parameters fail to parse is skipped, not fatal.
func (r *FiltersRepo) ListEnabled(ctx context.Context) ([]models.ScannerFilter, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var rows []filterRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT name, enabled, priority, sessions, parameters
		FROM scanner_filters
		WHERE enabled = true
		ORDER BY priority, name`)
	if err != nil {
		return nil, fmt.Errorf("failed to load scanner filters: %w", err)
	}

	out := make([]models.ScannerFilter, 0, len(rows))
	for _, row := range rows {
		f := models.ScannerFilter{
			Name:     row.Name,
			Enabled:  row.Enabled,
			Priority: row.Priority,
		}
		for _, s := range row.Sessions {
			f.Sessions = append(f.Sessions, models.Session(s))
		}
		if len(row.Params) > 0 {
			if err := json.Unmarshal(row.Params, &f.Params); err != nil {
				return nil, fmt.Errorf("filter %s has malformed parameters: %w", row.Name, err)
			}
		}
		out = append(out, f)
	}
	return out, nil
}
