// Package core provides the persistent data model for the batch job engine.
//
// This package contains:
//   - Job, JobDefinition and Batch entities with GORM annotations
//   - The Entity/Versioned contracts consumed by the persistence layer
//   - Suspension state codes
//   - Error types shared across the engine
//
// Most users should import the root package github.com/perluxo/batchjobs
// instead of this package directly.
package core
