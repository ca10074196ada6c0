// Package driving provides interfaces for user-facing adapters
// (primary/inbound ports): the indexing pipeline and the query engine.
package driving
