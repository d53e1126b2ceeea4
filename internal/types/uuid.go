package types

import (
	"fmt"

	"github.com/oklog/ulid/v2"
)

// GenerateUUID returns a k-sortable unique identifier
func GenerateUUID() string {
	return ulid.Make().String()
}

// GenerateUUIDWithPrefix returns a k-sortable unique identifier
// with a prefix ex sub_01HZX4W7K3M9Q2R5T8V1Y6B0CD
func GenerateUUIDWithPrefix(prefix string) string {
	if prefix == "" {
		return GenerateUUID()
	}
	return fmt.Sprintf("%s_%s", prefix, GenerateUUID())
}

const (
	// Prefixes for all domains and entities

	UUID_PREFIX_ACCOUNT            = "acc"
	UUID_PREFIX_BUNDLE             = "bun"
	UUID_PREFIX_SUBSCRIPTION       = "sub"
	UUID_PREFIX_SUBSCRIPTION_EVENT = "evt"
	UUID_PREFIX_BLOCKING_STATE     = "bst"
	UUID_PREFIX_MESSAGE            = "msg"
)
