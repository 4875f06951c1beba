package store

import (
	"database/sql"

	"github.com/sells-group/renewal-panel/internal/regress"
)

// FromOutcomes converts estimation outcomes into persistable records. Failed
// specs are kept with their error message and null statistics.
func FromOutcomes(outcomes []regress.Outcome) []SpecRecord {
	records := make([]SpecRecord, 0, len(outcomes))
	for _, o := range outcomes {
		if o.Err != nil {
			records = append(records, SpecRecord{
				Spec:   o.Spec.Name,
				Status: "failed",
				Error:  o.Err.Error(),
			})
			continue
		}
		r := o.Result
		records = append(records, SpecRecord{
			Spec:     r.SpecName,
			Status:   "ok",
			Coef:     sql.NullFloat64{Float64: r.Coef, Valid: true},
			StdErr:   sql.NullFloat64{Float64: r.StdErr, Valid: true},
			PValue:   sql.NullFloat64{Float64: r.PValue, Valid: true},
			CILow:    sql.NullFloat64{Float64: r.CILow, Valid: true},
			CIHigh:   sql.NullFloat64{Float64: r.CIHigh, Valid: true},
			R2Within: sql.NullFloat64{Float64: r.R2Within, Valid: true},
			NObs:     sql.NullInt64{Int64: int64(r.NObs), Valid: true},
			NCities:  sql.NullInt64{Int64: int64(r.NCities), Valid: true},
			NYears:   sql.NullInt64{Int64: int64(r.NYears), Valid: true},
		})
	}
	return records
}
