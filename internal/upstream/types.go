package upstream

import "time"

// RawRecord is one row as returned by the upstream table, before
// normalization. Fields are heterogeneous and schema-flexible (spec §4.1),
// so they are kept as a raw key→value map; internal/fieldmap owns all
// interpretation of FieldValue shapes.
type RawRecord struct {
	RecordID string
	Fields   map[string]FieldValue
}

// FieldValue is the raw JSON value of one upstream field. The upstream
// table's API returns wildly different shapes per field type (bare
// strings, {"text": ...} wrappers, arrays of attachment descriptors,
// arrays of {"text": ...} for select fields) — FieldValue preserves the
// decoded JSON shape and lets internal/fieldmap's coercion table interpret
// it per the declared FieldType.
type FieldValue struct {
	Raw any
}

// ListPage is one page of upstream records, as returned by ListRecords.
type ListPage struct {
	Records    []RawRecord
	NextCursor string // empty means no further pages
	TotalHint  int    // upstream's best estimate of total record count; 0 if unknown
}

// ResolvedAttachment is a temporary signed download URL for one attachment
// token, per spec §4.2's indirection protocol.
type ResolvedAttachment struct {
	URL       string
	ExpiresAt time.Time
}
