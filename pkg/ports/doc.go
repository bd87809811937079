/*
Package ports defines the driven ports (interfaces) of the capture service.

These interfaces decouple the ingestion core from browser drivers and counter
backends, so the core can be exercised with fakes and no real browser.

# Key Interfaces

  - Session: One capture-producing client (a browser tab). It can navigate, capture and close.
  - Launcher: Creates Sessions for the configured session IDs.
  - SequenceCounter: Hands out run-scoped, strictly increasing sequence numbers per logical group.
*/
package ports
