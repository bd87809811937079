/*
Package domain contains the core models of the capture service.

It defines the entities that flow between the ingestion transport, the session
registry, the deduplicator and the allocator. The package is free of I/O so that
every other layer can depend on it.

# Key Entities

  - RunContext: The immutable identity of one run (run id and output root).
  - Artifact: A captured image submitted by a session, tagged with a logical group.
  - Destination: Where an accepted artifact lands on disk.
  - Receipt: The outcome of a submission (stored, duplicate or failed).
  - Status: A read-only snapshot of the run used for liveness checks.
*/
package domain
