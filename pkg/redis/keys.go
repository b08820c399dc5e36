package redis

import "strings"

const defaultNamespace = "sbsync"

// Keyspace builds colon separated keys under a fixed namespace.
type Keyspace struct {
	namespace string
}

func NewKeyspace(namespace string) Keyspace {
	namespace = strings.Trim(strings.TrimSpace(namespace), ":")
	if namespace == "" {
		namespace = defaultNamespace
	}
	return Keyspace{namespace: namespace}
}

// Key joins parts under the namespace, skipping blanks.
func (k Keyspace) Key(parts ...string) string {
	ns := k.namespace
	if ns == "" {
		ns = defaultNamespace
	}
	var b strings.Builder
	b.WriteString(ns)
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		b.WriteByte(':')
		b.WriteString(part)
	}
	return b.String()
}

// IdempotencyKey namespaces event and request dedupe markers.
func (k Keyspace) IdempotencyKey(scope, id string) string {
	return k.Key("idempotency", scope, id)
}

// RateLimitKey namespaces fixed window counters.
func (k Keyspace) RateLimitKey(scope string) string {
	return k.Key("rate_limit", scope)
}

// LockKey namespaces distributed locks. Ids are case folded so asset folder
// slugs that differ only in case share one lock.
func (k Keyspace) LockKey(scope, id string) string {
	return k.Key("lock", scope, strings.ToLower(id))
}
