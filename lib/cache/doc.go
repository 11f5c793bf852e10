// Package cache provides the ETag response cache of a request executor.
//
// Read commands with a cached entry for their url are sent as conditional requests
// carrying the cached etag in If-None-Match. A 304 answer is served from the cache,
// any other successful answer with an ETag replaces the entry. The cache is safe for
// concurrent use, entries are never modified after they were stored.
package cache
