// Package shared holds cross-cutting utilities that do not belong to any
// single layer of the keygate codebase.
//
// The testutil subpackage provides fixture builders for users, licenses and
// payments plus a buffered slog handler for asserting on structured log
// output. Nothing here carries business logic; packages under internal/
// depend on shared, never the other way round.
package shared
