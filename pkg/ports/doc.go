/*
Package ports defines the driven ports (interfaces) of the triage engine.

These interfaces decouple the runtime and the authoring tools from storage and
identity implementations, so the same engine runs on memory, files, Badger,
Redis or Postgres.

# Key Interfaces

  - NodeReader / NodeWriter: read a partition's question graph and replace it atomically.
  - ResponseStore: persist submitted responses and their review status.
  - SessionStore: persist traversal sessions between requests.
  - IdentityProvider: resolve the operator stamping authored content or reviews.
  - DistributedLocker: serialize access to a session across replicas.
  - Watchable: notify when the underlying question bank changes.
*/
package ports
