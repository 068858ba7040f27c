/*
Package session serializes access to traversal sessions and persists them.

Every mutation is a read-modify-write under a per-session lock: an in-process
mutex with reference counting, optionally backed by a distributed lock so
replicas behind a load balancer do not interleave. Partition loads run
outside the lock through Fetch, which drops the result when a newer stage or
range selection happened while the fetch was in flight.
*/
package session
