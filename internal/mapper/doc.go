// Package mapper is a small active-record style data mapper.
//
// Models are structs tagged with `db:"column"` that name their table and
// primary key. Save probes the table for the model's primary key: an existing
// row is updated, anything else is inserted. Column lists come from the probe's
// result metadata, so only columns that exist in the table are written.
//
// A field is considered "set" when it holds a non-zero value. Fields tagged
// `db:"col,always"` are always written (booleans such as status, where false is
// meaningful). Save with overrideNull writes every mapped column on update.
// created_at is never rewritten; created_at/updated_at are stamped when unset.
//
// Reflection metadata is computed once per type.
package mapper
