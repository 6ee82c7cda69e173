// Package document holds the in-memory template tree shared by the walker,
// matcher and redactor: a closed set of node kinds (scalar, mapping,
// sequence), ordered mappings, JSON-pointer paths, and a JSON/YAML codec
// that keeps key order and scalar types across a round trip.
package document
