// Package driven provides interfaces for infrastructure adapters
// (secondary/outbound ports): persistent storage, document parsing,
// embedding generation and entity extraction.
package driven
