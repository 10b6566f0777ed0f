/*
Package pagan exposes records of typed binary files as read-only dynamic
objects.

A Parser owns a record engine: a registry of types (usually loaded from a
Kaitai-like .ksy schema) and the streams registered with AddFileStream.
GetObject decodes a record from the most recently added stream and returns
it wrapped in a View.

A View reads members by name. Each read goes through four steps:

1. The name "__deproxy" (DeproxyKey) yields the unwrapped target.

2. The target resolves the name natively: record members such as _parent,
_io or _size, list indices, map keys.

3. On a record, a present field of that name overrides the native result.

4. The result is classified: nested records, lists and plain composites are
wrapped in a new View, methods are bound to the target, byte slices and
scalars are returned as is, and a missing name is undefined (not an error).

Views never cache and never mutate. Every Set fails with ImmutableViewError.
The only way to produce output is Parser.Write, which deproxies the view and
re-encodes the record field by field.

# Values

Field values decode as int64 (signed integers), uint64 (unsigned integers),
float64, string, []byte, nested records and lists.

# Snapshots

Package store keeps decoded view trees as documents in Bolt: a header
(flags, format version, source size, xxhash64 of the source bytes) followed
by a msgpack or JSON body. Loaded documents are ordered dicts wrapped in
views, so they read exactly like live records.
*/
package pagan
