package certificate

import (
	"encoding/hex"

	"golang.org/x/crypto/sha3"
)

// verificationCodeLen is the byte length of the derived code (hex-doubled on output).
const verificationCodeLen = 16

// VerificationCode derives the public lookup code for a certificate from its
// number, the student identity and a server-side secret. SHAKE-256 keeps the
// code deterministic and one-way: the same inputs always produce the same
// code, and the code reveals neither the secret nor the identity.
func VerificationCode(number, studentIdentity string, secret []byte) string {
	h := sha3.NewShake256()
	h.Write(secret)
	h.Write([]byte{0})
	h.Write([]byte(number))
	h.Write([]byte{0})
	h.Write([]byte(studentIdentity))

	code := make([]byte, verificationCodeLen)
	h.Read(code)
	return hex.EncodeToString(code)
}

// Matches verifies a presented code against the certificate's stored code.
func (c *Certificate) Matches(code string) bool {
	return c.VerificationCode == code
}
