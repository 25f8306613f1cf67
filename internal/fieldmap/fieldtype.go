// Package fieldmap implements the FieldMapper component (spec §4.1): a
// pure, deterministic transform from one upstream.RawRecord into a
// model.Product. It owns the mapping table between upstream field ids and
// normalized target paths, the per-FieldType coercion rules, and the
// localization/display-fallback logic.
package fieldmap

// FieldType tags the shape a raw upstream value takes, per spec §4.1's
// mapping table. Re-expresses the source's dynamic, string-keyed field
// transforms as a closed sum type plus a coercion function per case (spec
// §9's design note), rather than dispatching on ad-hoc string tags at use
// sites.
type FieldType string

const (
	FieldTypeText         FieldType = "text"
	FieldTypeNumber       FieldType = "number"
	FieldTypeSingleSelect FieldType = "singleSelect"
	FieldTypeMultiSelect  FieldType = "multiSelect"
	FieldTypeLink         FieldType = "link"
	FieldTypeAttachment   FieldType = "attachment"
	FieldTypeLookup       FieldType = "lookup"
	FieldTypeFormula      FieldType = "formula"
	FieldTypeTimestamp    FieldType = "timestamp"
	FieldTypeAutoNumber   FieldType = "autoNumber"
)
