// Package services implements the core business logic: the indexing
// pipeline, metadata extraction, schema discovery and the query engine.
package services
