// Package cache provides the key-value backends used for verification key
// caching.
//
// Two backends implement Cache: MemoryCache, an in-process store built on
// go-cache, and RedisCache, which lets several service instances share
// fetched keys. Both support an atomic insert-if-absent (Add), which is the
// only write the key cache performs.
package cache
