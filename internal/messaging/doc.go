// Package messaging renders the page that hands an access token from the
// OAuth popup back to the window that opened it.
//
// The page runs a small inline script. On load it announces itself to the
// opener with "authorizing:{provider}". It then waits for a message from the
// opener and, once the event origin passes the allow-list, posts
// "authorization:{provider}:{status}:{json}" to exactly that origin and stops
// listening. Messages from other origins are ignored and the listener stays
// armed.
//
// MatchOrigin implements the allow-list rules in Go. The emitted script
// implements the same rules so both can be tested against one table:
//
//   - an entry containing "://" must equal the origin exactly
//   - a bare "host[:port]" entry must equal the origin host, over http or https
//   - "*.example.com" matches any strict subdomain of example.com, any port
//
// Comparison is case-insensitive. An empty allow-list accepts every origin.
package messaging
