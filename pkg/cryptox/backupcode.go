package cryptox

import (
	"crypto/rand"
	"math/big"
	"strings"
)

// Crockford base32 without padding characters that read ambiguously.
const backupCodeAlphabet = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

// GenerateBackupCode returns a single-use recovery code in the form
// XXXXX-XXXXX. Callers store only its fingerprint.
func GenerateBackupCode() (string, error) {
	var b strings.Builder
	for i := 0; i < 10; i++ {
		if i == 5 {
			b.WriteByte('-')
		}
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(backupCodeAlphabet))))
		if err != nil {
			return "", err
		}
		b.WriteByte(backupCodeAlphabet[n.Int64()])
	}
	return b.String(), nil
}

// NormalizeBackupCode uppercases a user-supplied code and strips separators
// and whitespace so fingerprints match regardless of how it was typed.
func NormalizeBackupCode(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	code = strings.ReplaceAll(code, "-", "")
	code = strings.ReplaceAll(code, " ", "")
	if len(code) != 10 {
		return code
	}
	return code[:5] + "-" + code[5:]
}
