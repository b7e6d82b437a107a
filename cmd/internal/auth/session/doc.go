// Package session implements sauat's token lifecycle.
//
// Access tokens are HS512 JWTs and are not persisted. Refresh tokens are
// opaque random strings kept in a Store (Postgres, Redis or memory) and
// rotated on every use: the presented token is revoked, linked to its
// successor and never accepted again.
//
// Service ties the pieces together for the login, register, refresh and
// logout flows. HTTP transport lives in the api package.
package session
