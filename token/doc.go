// Package token implements DSH protocol token delegation.
//
// An API key is exchanged for a tenant scoped RestToken, which in turn is
// exchanged for DataAccessTokens bound to one external client id and a set of
// topic permissions. APIClientTokenFetcher caches both kinds and refetches
// them shortly before they expire.
package token
