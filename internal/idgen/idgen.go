// Package idgen issues the opaque identifiers used for conversations, turns
// and audio clips.
package idgen

import (
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

const (
	PrefixConversation = "conv_"
	PrefixTurn         = "turn_"
	PrefixAudio        = "aud_"
)

var (
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
)

// New returns a lowercase ULID with the given prefix. IDs minted by one
// process sort in creation order.
func New(prefix string) string {
	mu.Lock()
	if entropy == nil {
		entropy = ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0)
	}
	id := ulid.MustNew(ulid.Timestamp(time.Now()), entropy)
	mu.Unlock()
	return prefix + strings.ToLower(id.String())
}

func Conversation() string { return New(PrefixConversation) }
func Turn() string         { return New(PrefixTurn) }
func Audio() string        { return New(PrefixAudio) }

// Valid reports whether value carries prefix followed by a parseable ULID.
func Valid(prefix, value string) bool {
	if !strings.HasPrefix(value, prefix) {
		return false
	}
	_, err := ulid.ParseStrict(strings.ToUpper(strings.TrimPrefix(value, prefix)))
	return err == nil
}
