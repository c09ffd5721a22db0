// Package errcode implements the error handlers for the registry API. It
// assigns each kind of API failure a registered code, an HTTP status and a
// documentation anchor, and renders them in the registry's single-object
// JSON error envelope.
package errcode
