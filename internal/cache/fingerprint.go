// Package cache implements fingerprint-keyed response caching.
//
// DESIGN: A fingerprint covers only the fields that determine the model's
// output: model id, the ordered message list, and sampling parameters.
// Trace ids, request ids, and other transport noise never participate, so
// semantically identical requests always hash to the same key.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
)

// ErrMalformedRequest is returned when the request body cannot be
// fingerprinted. Callers treat it as an invalid request, never as a cache
// failure.
var ErrMalformedRequest = errors.New("cache: malformed request body")

// Fingerprint derives the deterministic cache key for a chat-completion
// request body.
func Fingerprint(body []byte) (string, error) {
	if !gjson.ValidBytes(body) {
		return "", ErrMalformedRequest
	}

	model := gjson.GetBytes(body, "model")
	messages := gjson.GetBytes(body, "messages")
	if !model.Exists() || model.Type != gjson.String || !messages.IsArray() {
		return "", ErrMalformedRequest
	}

	h := sha256.New()
	h.Write([]byte(model.String()))
	h.Write([]byte{0})

	malformed := false
	messages.ForEach(func(_, msg gjson.Result) bool {
		role := msg.Get("role")
		content := msg.Get("content")
		if !role.Exists() || !content.Exists() {
			malformed = true
			return false
		}
		h.Write([]byte(role.String()))
		h.Write([]byte{0})
		h.Write([]byte(content.Raw))
		h.Write([]byte{0})
		return true
	})
	if malformed {
		return "", ErrMalformedRequest
	}

	// Sampling parameters participate only when present, so a request that
	// omits temperature hashes differently from one that pins it.
	for _, field := range []string{"temperature", "max_tokens", "top_p"} {
		if v := gjson.GetBytes(body, field); v.Exists() {
			fmt.Fprintf(h, "%s=%s\x00", field, v.Raw)
		}
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}
