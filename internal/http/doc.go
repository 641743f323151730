// Package http provides HTTP handlers and middleware for the Quick Meet API.
//
// The router exposes the following endpoints:
//   - GET /auth/url: returns the provider consent URL for the requesting
//     platform. POST /auth/login exchanges the authorization code and issues
//     the encrypted session cookies; POST /auth/refresh rotates the access
//     token; POST /auth/logout revokes the credential and clears the cookies.
//   - GET /rooms: the room directory, seat count ascending. GET
//     /rooms/available resolves free rooms for a window, partitioned into
//     preferred and others by the floor filter. GET /rooms/highest-seat-count
//     and GET /floors bound the client-side filters. GET /people searches the
//     people directory by email substring.
//   - GET /events, POST /events, PUT /events/{id}, DELETE /events/{id}:
//     booking management exchanging the `eventRequest` payload defined in
//     event_handler.go. PUT /events/{id}/response records the caller's RSVP.
//
// Sessions are stateless: tokens live encrypted in client cookies and are
// decrypted per request by the RequireSession middleware. Request/response
// DTOs live alongside their respective handlers so tests and documentation
// share the same ground truth.
package http
