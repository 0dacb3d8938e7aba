// Package api implements the rule store HTTP service.
//
// # Endpoints
//
//	GET    /              liveness greeting
//	GET    /rules         all rules, in order
//	POST   /rules         append a rule
//	GET    /rules/{ref}   one rule
//	PUT    /rules/{ref}   replace a rule in place
//	DELETE /rules/{ref}   remove a rule
//	GET    /healthz       status and rule count
//	GET    /metrics       Prometheus exposition
//	GET    /ws/rules      websocket stream of rule events
//
// A {ref} made only of digits is a position in the current list; anything
// else is a rule id. Positional requests may add ?expect=<id>; if the rule
// at that position has another id the request fails with 409 and nothing
// changes.
//
// # Middleware
//
// Requests pass through, in order: access log, CORS, language selection,
// rate limiting and API-key checks (mutations only), and the body size cap.
//
// # Errors
//
// Failures are JSON objects of the form {"error": "...", "details": "..."}.
// The error text follows the request's Accept-Language.
package api
