package model

// Catalog is a named external data source (spec §3 Catalog). Grounded on
// original_source/src/catalog.rs's Catalog struct.
type Catalog struct {
	ID             int64
	Name           *string
	URL            *string
	Description    string
	TypeName       string
	WDProp         *int64 // KB property id naming this catalog's external id, if directly mappable
	WDQual         *int64 // qualifier property id; set => legacy qualifier-based catalog, excluded from microsync
	SearchLanguage string
	Active         bool
	OwnerUserID    int64
	Note           string
	SourceItem     *int64 // KB item describing the catalog itself
	HasPersonDate  bool
	TaxonRun       bool
}

// IsDirectlyMappable reports whether the catalog's external ids map
// directly onto KB statements of WDProp (spec §3 Catalog invariants).
func (c *Catalog) IsDirectlyMappable() bool {
	return c.WDProp != nil && c.WDQual == nil
}

// IsLegacyQualifierBased reports whether the catalog uses the legacy
// qualifier-based external-id scheme, which excludes it from microsync
// (spec §3, §4.5.8).
func (c *Catalog) IsLegacyQualifierBased() bool {
	return c.WDQual != nil
}

// EligibleForMicrosync reports whether microsync applies to this catalog:
// a WDProp is set and it is not qualifier-based (spec §4.5.8). Per the
// Open Question in spec §9, this applies uniformly with no per-catalog
// exclusion (see DESIGN.md decision #2).
func (c *Catalog) EligibleForMicrosync() bool {
	return c.WDProp != nil && c.WDQual == nil
}
