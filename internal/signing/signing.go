// Package signing authenticates the image URLs the local image store hands to
// the remote scan service.
//
// A signature is the hex HMAC-SHA256 of "GET\n<object key>\n<expiry unix>".
// The object key is the unescaped key (for example "posts/<id>/look.jpg"), so
// a URL stays valid however a client re-encodes its path.
package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
)

// Signer signs and checks image URL payloads with a shared secret. The API
// server and anything minting URLs for it must use the same secret.
type Signer struct {
	secret []byte
}

// NewSigner creates a Signer.
func NewSigner(secret []byte) *Signer {
	return &Signer{secret: secret}
}

// Sign returns the signature granting read access to key until expiresUnix.
func (s *Signer) Sign(key string, expiresUnix int64) string {
	return hex.EncodeToString(s.mac(key, expiresUnix))
}

// Validate reports whether signature was produced by Sign for key and the
// expiry in its decimal query form. Expiry itself is checked by the caller.
func (s *Signer) Validate(key, expires, signature string) bool {
	exp, err := strconv.ParseInt(expires, 10, 64)
	if err != nil {
		return false
	}
	got, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	return hmac.Equal(got, s.mac(key, exp))
}

func (s *Signer) mac(key string, expiresUnix int64) []byte {
	m := hmac.New(sha256.New, s.secret)
	m.Write([]byte("GET\n" + key + "\n" + strconv.FormatInt(expiresUnix, 10)))
	return m.Sum(nil)
}
