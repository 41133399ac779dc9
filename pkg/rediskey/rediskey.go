package rediskey

import "fmt"

// Lock keys (global convention across worker instances)
const (
	SweepLockPrefix     = "sweep:lock"
	RecipientLockPrefix = "outbox:recipient"
)

func NamespaceKey(namespace, key string) string {
	return fmt.Sprintf("%s:%s", namespace, key)
}

// BuildSweepLockKey returns "sweep:lock:{jobType}", the singleton-scheduler
// token for one periodic job type across the fleet.
func BuildSweepLockKey(jobType string) string {
	return NamespaceKey(SweepLockPrefix, jobType)
}

// BuildRecipientLockKey returns "outbox:recipient:{platform}:{recipientID}",
// the per-recipient delivery lock layered on top of row claiming.
func BuildRecipientLockKey(platform, recipientID string) string {
	return NamespaceKey(RecipientLockPrefix, fmt.Sprintf("%s:%s", platform, recipientID))
}
