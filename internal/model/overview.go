package model

// Overview is the per-catalog counter row (spec §3 Overview row). Grounded
// on original_source/src/storage_mysql.rs's refresh_overview_table query
// (column set and names) and mixnmatch.rs's update_overview_table (the
// incremental update rule).
type Overview struct {
	CatalogID  int64
	Total      int64
	NoQ        int64 // q IS NULL
	AutoQ      int64 // user=0
	NA         int64 // q=0 ("not applicable")
	Manual     int64 // q IS NOT NULL AND user>0
	NoWD       int64 // q=-1 ("not on KB")
	MultiMatch int64
	Types      []string // distinct observed entry.type values
}

// OverviewColumn names the overview counter affected by a given (userID, q)
// pair. Grounded verbatim on
// original_source/src/mixnmatch.rs::get_overview_column_name_for_user_and_q:
//
//	(Some(0), _)      => "autoq"
//	(Some(_), None)   => "noq"
//	(Some(_), Some(0))  => "na"
//	(Some(_), Some(-1)) => "nowd"
//	(Some(_), _)      => "manual"
//	_                 => "noq"
func OverviewColumn(userID *int, q *int64) string {
	if userID == nil {
		return "noq"
	}
	if *userID == UserAuto {
		return "autoq"
	}
	if q == nil {
		return "noq"
	}
	switch *q {
	case 0:
		return "na"
	case -1:
		return "nowd"
	default:
		return "manual"
	}
}
