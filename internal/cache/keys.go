package cache

import "fmt"

// InstrumentsKey is the aggregate key caching the full instrument listing.
const InstrumentsKey = "instruments"

const keyPrefix = "tradeledger"

// versionedKey namespaces a key with the cache version so bumping the version
// orphans old entries instead of requiring a flush.
func versionedKey(key string, version int) string {
	return fmt.Sprintf("%s:%d:%s", keyPrefix, version, key)
}

// TransactionsKey is the cache key for an account's full trade history.
func TransactionsKey(username string) string {
	return fmt.Sprintf("%s_transactions", username)
}

// RangeTransactionsKey is the cache key for a time-scoped trade history,
// built from the canonical UTC RFC 3339 form of a validated window. These
// keys cannot be enumerated for invalidation; they age out by TTL.
func RangeTransactionsKey(username, start, end string) string {
	return fmt.Sprintf("%s_%s_%s_transactions", username, start, end)
}
