package authcore

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
)

const backupCodeCount = 10

// generateBackupCodes returns fresh plaintext codes in xxxx-xxxx-xxxx
// form alongside their hex SHA-256 hashes. Only the hashes are ever
// persisted; the plaintext is shown to the user once.
func generateBackupCodes() (codes []string, hashes []string, err error) {
	codes = make([]string, 0, backupCodeCount)
	hashes = make([]string, 0, backupCodeCount)
	for i := 0; i < backupCodeCount; i++ {
		raw := make([]byte, 6)
		if _, err := rand.Read(raw); err != nil {
			return nil, nil, fmt.Errorf("generate backup code: %w", err)
		}
		h := hex.EncodeToString(raw)
		code := fmt.Sprintf("%s-%s-%s", h[0:4], h[4:8], h[8:12])
		codes = append(codes, code)
		hashes = append(hashes, hashBackupCode(code))
	}
	return codes, hashes, nil
}

func hashBackupCode(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}

// consumeBackupCode checks the candidate against every stored hash in
// constant time per entry. On a match it returns the remaining hashes
// with the matched one removed; a code never verifies twice.
func consumeBackupCode(hashes []string, candidate string) (remaining []string, ok bool) {
	want := hashBackupCode(candidate)
	matched := -1
	for i, h := range hashes {
		if subtle.ConstantTimeCompare([]byte(h), []byte(want)) == 1 && matched == -1 {
			matched = i
		}
	}
	if matched == -1 {
		return hashes, false
	}
	remaining = make([]string, 0, len(hashes)-1)
	remaining = append(remaining, hashes[:matched]...)
	remaining = append(remaining, hashes[matched+1:]...)
	return remaining, true
}
