// Package observability builds the zap logger shared by the API server and
// roompectl, and tags request-scoped loggers with chi's request ID.
package observability
