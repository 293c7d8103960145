package model

// User-role identifiers (spec §6.4). These appear on entries (as the
// matcher that confirmed a match), on jobs (who queued it) and in audit
// rows. Values above UserFirstHuman are human accounts identified by a
// stored display name rather than by a reserved constant.
const (
	UserAuto          = 0 // automatic matcher; may be overwritten by any non-auto match
	UserNameDateMatch = 3 // person-date matcher (§4.5.7)
	UserAuxMatch      = 4 // auxiliary-id / taxon matcher (§4.5.4, §4.5.5)
	UserLocationMatch = 5 // coordinate matcher (§4.5.6)
	UserCersei        = 6 // CERSEI importer
	UserWorksMatch    = 7 // works matcher

	UserFirstHuman = 8
)

// IsAutoMatch reports whether userID denotes the automatic, overridable
// matcher identity.
func IsAutoMatch(userID int) bool {
	return userID == UserAuto
}
