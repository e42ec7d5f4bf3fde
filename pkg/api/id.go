package api

import (
	"crypto/rand"
	"math/big"
	"regexp"
	"strings"
)

// IDs are a type prefix plus 24 cryptographically random alphanumeric
// characters, e.g. resp_Ab3dEf6hIj9kLm2nOp5qRs8t.
const (
	idLength = 24
	charset  = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	responseIDPrefix     = "resp_"
	itemIDPrefix         = "item_"
	conversationIDPrefix = "conv_"
)

func idPattern(prefix string) *regexp.Regexp {
	return regexp.MustCompile("^" + prefix + "[a-zA-Z0-9]{24}$")
}

var (
	responseIDPattern     = idPattern(responseIDPrefix)
	itemIDPattern         = idPattern(itemIDPrefix)
	conversationIDPattern = idPattern(conversationIDPrefix)
)

// NewResponseID generates a fresh resp_ ID.
func NewResponseID() string {
	return responseIDPrefix + randomAlphanumeric(idLength)
}

// NewItemID generates a fresh item_ ID.
func NewItemID() string {
	return itemIDPrefix + randomAlphanumeric(idLength)
}

// NewConversationID generates a fresh conv_ ID.
func NewConversationID() string {
	return conversationIDPrefix + randomAlphanumeric(idLength)
}

// ValidateResponseID reports whether id is a well-formed response ID.
func ValidateResponseID(id string) bool {
	return responseIDPattern.MatchString(id)
}

// ValidateItemID reports whether id is a well-formed item ID.
func ValidateItemID(id string) bool {
	return itemIDPattern.MatchString(id)
}

// ValidateConversationID reports whether id is a well-formed
// conversation ID.
func ValidateConversationID(id string) bool {
	return conversationIDPattern.MatchString(id)
}

// HasConversationPrefix reports whether id starts with conv_, a cheap
// screen before the full format check.
func HasConversationPrefix(id string) bool {
	return strings.HasPrefix(id, conversationIDPrefix)
}

func randomAlphanumeric(n int) string {
	max := big.NewInt(int64(len(charset)))
	b := make([]byte, n)
	for i := range b {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			panic("crypto/rand failed: " + err.Error())
		}
		b[i] = charset[idx.Int64()]
	}
	return string(b)
}
