package crypto

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// computeIntegrityHash computes the tier-gated secondary keyed hash over the
// envelope fields, keyed with the derived key. It binds the envelope fields
// the AEAD tag alone does not cover (algorithm id, classification,
// timestamp).
//
// The canonical concatenation is fixed:
//
//	ct:<hex>|nonce:<hex>|tag:<hex>|salt:<hex>|alg:<id>|class:<tier>|ts:<ms>
//
// Reordering or renaming fields breaks verification of stored envelopes.
func computeIntegrityHash(env *Envelope, derivedKey []byte) string {
	var b bytes.Buffer
	b.WriteString("ct:")
	b.WriteString(env.Ciphertext)
	b.WriteString("|nonce:")
	b.WriteString(env.Nonce)
	b.WriteString("|tag:")
	b.WriteString(env.Tag)
	b.WriteString("|salt:")
	b.WriteString(env.Salt)
	b.WriteString("|alg:")
	b.WriteString(env.Algorithm)
	b.WriteString("|class:")
	b.WriteString(string(env.Classification))
	b.WriteString("|ts:")
	fmt.Fprintf(&b, "%d", env.CreatedAtMS)

	mac := hmac.New(sha256.New, derivedKey)
	mac.Write(b.Bytes())
	return hex.EncodeToString(mac.Sum(nil))
}

// verifyIntegrityHash recomputes the hash and compares it to the stored
// value in constant time. hmac.Equal prevents timing side-channels that
// would let an attacker binary-search the correct hash.
func verifyIntegrityHash(env *Envelope, derivedKey []byte) bool {
	expected := computeIntegrityHash(env, derivedKey)
	return hmac.Equal([]byte(expected), []byte(env.IntegrityHash))
}
