package redis

// KeyPrefix namespaces every key written by hop.
const KeyPrefix = "hop:"

// Key returns the namespaced Redis key for a cache key.
// Example: "link:abc123" -> "hop:link:abc123"
func Key(cacheKey string) string {
	return KeyPrefix + cacheKey
}
