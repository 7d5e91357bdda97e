/*
Package ports defines the driven ports (interfaces) of the orderflow engine.

These interfaces decouple the dialogue core from the collaborators it talks to,
so the engine runs the same against a scripted backend in tests and a real
generative service in production.

# Key Interfaces

  - Backend: the generative text backend, an opaque call returning text.
  - Catalog and Knowledge: read-only item and policy lookups.
  - StageSource: where stage declarations come from (YAML, Loam, code).
  - SessionStore: in-process keeping of SessionContext records.
  - DistributedLocker: serializes turns for one session across replicas.
*/
package ports
