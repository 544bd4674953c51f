// Package handlers contains the reusable pieces of the HTTP interface:
// readiness checks and middleware.
//
// # Readiness
//
// Checks run in parallel, each with its own timeout:
//
//	checker := handlers.NewReadinessChecker(version)
//	checker.AddCheck("database", handlers.PingCheck(store))
//	checker.AddOptionalCheck("completion", handlers.PingCheck(mentorClient))
//
//	status := checker.Check(ctx)
//
// # Middleware
//
// AdminAuth guards the administrator routes with API keys compared against
// bcrypt hashes. SessionCookie gives every browser an opaque session id
// (a UUID) that keys the mentor session state.
package handlers
