// Package server provides HTTP routing, middleware, and the REST handlers
// for the harmonium service.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] wraps handlers in reverse order (last added executes first), following the standard Go pattern.
//
// The [BasicRouter] implementation uses [http.ServeMux] internally with
// method-qualified patterns.
//
// # Middleware Stack
//
// Three middleware are registered for the service, outermost first:
//
//   - [Recover] converts handler panics into JSON 500 responses
//   - [RequestLogger] logs method, path, status, and duration per request
//   - [Authenticate] validates bearer session tokens, loads the caller's
//     provider credential (refreshing near expiry), and attaches a
//     [Principal] to the request context
//
// Authentication skips public prefixes: health, OAuth entry points, and
// public catalog lookups served with the app token.
//
// # Handler Interface
//
// Custom handlers implement the [Handler] interface, which wraps the stdlib handler interface and adds routes,
// allowing handlers to register multiple routes to encapsulate route definitions within the implementation.
//
// Endpoint groups:
//
//   - [AuthHandler] : login redirect, OAuth callback, session refresh, logout
//   - [PlaylistHandler] : playlist CRUD and track management with cached lists
//   - [MusicHandler] : profile, catalog lookups, and recommendations
//   - [HealthHandler] : liveness plus circuit breaker states
//
// # Error Responses
//
// Every error response is JSON with a single "error" field. Typed errors
// from the shared package map to status codes in one place (statusFor), so
// handlers return errors instead of picking status codes inline.
package server
