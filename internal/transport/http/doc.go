// Package http exposes keygate's REST surface: administrative license and
// user mutations, paginated queries, the entitlement validation endpoint,
// and health checks. Handlers are thin; all domain rules live in the
// services layer. Errors render as RFC 7807 problem documents.
package http
