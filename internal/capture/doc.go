// Package capture implements the public capture endpoint: every HTTP call
// to /capture/{token} is recorded against the webhook that owns the token
// and answered with that webhook's configured reply.
//
// The endpoint is unauthenticated and its callers are untrusted machines, so
// every failure is answered with a short generic body and details go to the
// server log only.
//
// # Request Flow
//
//  1. Webhook looked up by token among live, enabled webhooks (404, nothing recorded)
//  2. Content-Type checked against binary prefixes (415)
//  3. Declared Content-Length checked against the body limit (413, body not read)
//  4. Body read under a read deadline and re-checked against the limit (413)
//  5. Method, headers, query, body, source IP and user agent extracted
//  6. Captured request written; failure is a 500 and nothing is broadcast
//  7. "new-request" event published to the webhook's topic, best effort
//  8. Reply resolved from the webhook's response config and written
//
// GET, POST, PUT, PATCH, DELETE, HEAD and OPTIONS all take the same path;
// the method is recorded, not branched on.
//
// # Error Responses
//
//   - 404 Not Found: unknown or disabled token, empty body
//   - 413 Payload Too Large: {"error":"Payload Too Large"}
//   - 415 Unsupported Media Type: {"error":"Binary content types are not supported"}
//   - 500 Internal Server Error: {"error":"Internal Server Error"}
package capture
