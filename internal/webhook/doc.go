// Package webhook manages webhooks on behalf of their owners.
//
// A webhook is owned either by an authenticated user or by the holder of an
// anonymous session. Every operation takes the access.Caller making it and
// applies the access rules before touching storage.
//
// # Operations
//
//   - Create, Update, Delete, Get and List manage webhooks.
//   - Claim moves the anonymous webhook of a session to the calling user.
//   - Bootstrap mints an anonymous webhook with a generated token.
//   - ListRequests, GetRequest and ClearRequests inspect captured traffic.
//   - GetResponse, PutResponse and ResetResponse edit the capture reply.
//
// # Token uniqueness
//
// Tokens are checked before insert, but the unique index on live tokens is
// what decides. A late storage.ErrDuplicateKey surfaces as a Conflict for
// caller supplied tokens and triggers regeneration in Bootstrap.
//
// # Capture lookups
//
// LookupByToken backs the capture endpoint. Results are cached in an LRU
// that every mutation here invalidates; entries also expire after
// CacheTTL so that writes from other processes become visible.
package webhook
