package client

import "fmt"

// FetchPolicy decides whether a query is answered from the cache, the
// network or both.
type FetchPolicy string

const (
	// CacheFirst answers from the cache and goes to the network on a miss.
	CacheFirst FetchPolicy = "cache-first"
	// NetworkOnly always fetches and writes the result to the cache.
	NetworkOnly FetchPolicy = "network-only"
	// CacheOnly never fetches.
	CacheOnly FetchPolicy = "cache-only"
	// NoCache fetches and leaves the cache untouched.
	NoCache FetchPolicy = "no-cache"
)

func ParseFetchPolicy(name string) (FetchPolicy, error) {
	switch p := FetchPolicy(name); p {
	case CacheFirst, NetworkOnly, CacheOnly, NoCache:
		return p, nil
	case "":
		return CacheFirst, nil
	}
	return "", fmt.Errorf("unknown fetch policy %q", name)
}

func (p FetchPolicy) readsCache() bool {
	return p == CacheFirst || p == CacheOnly
}

func (p FetchPolicy) writesCache() bool {
	return p != NoCache
}

// ErrorPolicy decides what a response carrying GraphQL errors turns into.
type ErrorPolicy string

const (
	// ErrorPolicyNone fails the operation on any GraphQL error.
	ErrorPolicyNone ErrorPolicy = "none"
	// ErrorPolicyAll returns data and errors together.
	ErrorPolicyAll ErrorPolicy = "all"
)
