package domain

import "errors"

var (
	ErrHostNotFound         = errors.New("host not found")
	ErrConversationNotFound = errors.New("conversation not found")
)
