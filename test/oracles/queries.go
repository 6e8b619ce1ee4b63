package oracles

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Oracle struct {
	Name string
	SQL  string
}

func All() []Oracle {
	return []Oracle{
		{
			Name: "O1_single_opportunity_per_lead",
			SQL: `SELECT lead_id, COUNT(*) FROM opportunities
                  GROUP BY lead_id HAVING COUNT(*) > 1`,
		},
		{
			Name: "O2_converted_iff_opportunity",
			SQL: `SELECT l.lead_id, l.status_id, o.opportunity_id
                  FROM leads l
                  LEFT JOIN opportunities o ON o.lead_id = l.lead_id
                  WHERE (l.status_id = 2 AND o.opportunity_id IS NULL)
                     OR (l.status_id = 1 AND o.opportunity_id IS NOT NULL)`,
		},
		{
			Name: "O3_complete_has_no_incomplete_station",
			SQL: `SELECT o.opportunity_id FROM opportunities o
                  WHERE o.status_id = 2 AND NOT o.is_deleted
                    AND EXISTS (
                        SELECT 1 FROM gas_stations s
                        WHERE s.opportunity_id = o.opportunity_id AND NOT s.is_deleted
                          AND (COALESCE(s.poc_name, '') = ''
                               OR COALESCE(s.poc_phone, '') = ''
                               OR s.number_of_pumps IS NULL
                               OR s.number_of_employees IS NULL
                               OR s.station_type_id IS NULL))`,
		},
		{
			Name: "O4_active_despite_all_complete",
			SQL: `SELECT o.opportunity_id FROM opportunities o
                  WHERE o.status_id = 1 AND NOT o.is_deleted
                    AND EXISTS (
                        SELECT 1 FROM gas_stations s
                        WHERE s.opportunity_id = o.opportunity_id AND NOT s.is_deleted)
                    AND NOT EXISTS (
                        SELECT 1 FROM gas_stations s
                        WHERE s.opportunity_id = o.opportunity_id AND NOT s.is_deleted
                          AND (COALESCE(s.poc_name, '') = ''
                               OR COALESCE(s.poc_phone, '') = ''
                               OR s.number_of_pumps IS NULL
                               OR s.number_of_employees IS NULL
                               OR s.station_type_id IS NULL))`,
		},
		{
			Name: "O5_assignment_points_at_real_user",
			SQL: `SELECT 'lead' AS kind, l.lead_id AS id FROM leads l
                  LEFT JOIN users u ON u.user_id = l.assigned_to
                  WHERE u.user_id IS NULL
                  UNION ALL
                  SELECT 'opportunity', o.opportunity_id FROM opportunities o
                  LEFT JOIN users u ON u.user_id = o.assigned_to
                  WHERE u.user_id IS NULL`,
		},
	}
}

// Run executes all oracles and returns the first failure (name and sample row text) or empty name if all pass.
func Run(ctx context.Context, pool *pgxpool.Pool) (string, string, error) {
	for _, o := range All() {
		rows, err := pool.Query(ctx, o.SQL)
		if err != nil {
			return o.Name, "", fmt.Errorf("oracle %s: %w", o.Name, err)
		}
		has := rows.Next()
		if has {
			vals, err := rows.Values()
			rows.Close()
			if err != nil {
				return o.Name, "", err
			}
			return o.Name, fmt.Sprintf("%v", vals), nil
		}
		rows.Close()
	}
	return "", "", nil
}
