package utils

import "github.com/google/uuid"

// GenID returns a new opaque entity identifier.
func GenID() string {
	return uuid.NewString()
}

// GenConversationID returns a new conversation identifier with a readable
// prefix so keys are easy to pick out in the store.
func GenConversationID() string {
	return "conv_" + uuid.NewString()
}
