package authcore

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/auralis-app/authcore/permission"
	"github.com/auralis-app/authcore/store"
)

// User and Session are the canonical account and session records,
// shared with the persistence layer.
type (
	User    = store.User
	Session = store.Session
)

// LoginResult is the outcome of an authentication attempt against
// either backend. When TwoFactorRequired is set the login is pending:
// Session is nil and ChallengeID must be completed via
// ConfirmTwoFactor or ConfirmTwoFactorBackup before it expires.
type LoginResult struct {
	TwoFactorRequired bool
	ChallengeID       string
	UserID            string
	Username          string
	Role              permission.Role
	Session           *Session
}

// TwoFactorSetup is returned by EnableTwoFactor. Secret and QRPNG are
// for the enrollment UI; nothing is persisted until the setup is
// confirmed with a valid code.
type TwoFactorSetup struct {
	Secret       string
	ProvisionURI string
	QRPNG        []byte
	BackupCodes  []string
}

// UserUpdate carries the mutable account fields for UpdateUser. Nil
// means leave unchanged.
type UserUpdate struct {
	Role   *permission.Role
	Active *bool
}

const sessionIDBytes = 32

func newSessionID() (string, error) {
	raw := make([]byte, sessionIDBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate session id: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}
