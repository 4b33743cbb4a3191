// Package auth authorizes requests carrying RS256 bearer tokens issued by an
// external identity provider.
//
// The pipeline, leaves first:
//
//   - KeyCache maps a key id to its verification certificate. Inserts never
//     overwrite.
//   - JWKSFetcher reads the provider's published key set and selects the
//     signing entry for a key id.
//   - KeyResolver consults the cache and collapses concurrent fetches for the
//     same key id into one.
//   - Verifier checks the Authorization header, the token signature and its
//     time claims, and yields an Identity.
//   - Gate turns a verification outcome into an Allow or Deny Decision. It
//     never fails and never panics.
package auth
