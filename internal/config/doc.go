// Package config loads cfnsanitizer settings from a repo-local file and a
// global per-user file. Both are optional; the CLI merges them with flags,
// flags taking precedence.
package config
