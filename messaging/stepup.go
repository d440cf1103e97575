package messaging

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base32"
	"encoding/binary"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/crewchat/crewseal/internal/util"
)

// StepUpVerifier checks a second-factor code before sensitive message types
// are decrypted.
type StepUpVerifier interface {
	Verify(userID, code string) bool
}

const (
	totpSecretBytes = 20
	totpDigits      = 6
	totpPeriod      = 30
	totpWindow      = 1
	totpIssuer      = "CrewSeal"
)

// TOTPVerifier is a StepUpVerifier backed by per-user RFC 6238 TOTP secrets.
type TOTPVerifier struct {
	mu      sync.RWMutex
	secrets map[string]string
	now     func() time.Time
}

var _ StepUpVerifier = (*TOTPVerifier)(nil)

// NewTOTPVerifier creates an empty TOTPVerifier.
func NewTOTPVerifier() *TOTPVerifier {
	return &TOTPVerifier{
		secrets: make(map[string]string),
		now:     time.Now,
	}
}

// Enroll generates a TOTP secret for the user and returns the secret along
// with an otpauth:// provisioning URL for authenticator apps.
func (v *TOTPVerifier) Enroll(userID string) (secret, provisioningURL string, err error) {
	raw, err := util.RandomBytes(totpSecretBytes)
	if err != nil {
		return "", "", err
	}
	secret = base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(raw)

	v.mu.Lock()
	v.secrets[userID] = secret
	v.mu.Unlock()

	return secret, otpAuthURL(secret, userID), nil
}

// Unenroll removes the user's TOTP secret.
func (v *TOTPVerifier) Unenroll(userID string) {
	v.mu.Lock()
	delete(v.secrets, userID)
	v.mu.Unlock()
}

// Verify checks the code against the user's secret, accepting one period of
// clock skew in either direction. Unenrolled users never verify.
func (v *TOTPVerifier) Verify(userID, code string) bool {
	v.mu.RLock()
	secret, ok := v.secrets[userID]
	v.mu.RUnlock()
	if !ok {
		return false
	}

	code = normalizeTOTPCode(code)
	if !validTOTPCode(code) {
		return false
	}
	now := v.now()
	for i := -totpWindow; i <= totpWindow; i++ {
		at := now.Add(time.Duration(i*totpPeriod) * time.Second)
		expected, err := totpCodeAt(secret, at)
		if err != nil {
			return false
		}
		if subtle.ConstantTimeCompare([]byte(expected), []byte(code)) == 1 {
			return true
		}
	}
	return false
}

func normalizeTOTPCode(code string) string {
	return strings.TrimSpace(strings.ReplaceAll(code, " ", ""))
}

func validTOTPCode(code string) bool {
	if len(code) != totpDigits {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func totpCodeAt(secret string, at time.Time) (string, error) {
	decoded, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(strings.ToUpper(secret))
	if err != nil {
		return "", err
	}

	counter := uint64(at.Unix() / totpPeriod)
	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], counter)

	mac := hmac.New(sha1.New, decoded)
	_, _ = mac.Write(msg[:])
	sum := mac.Sum(nil)
	offset := sum[len(sum)-1] & 0x0f
	binCode := (int(sum[offset])&0x7f)<<24 |
		(int(sum[offset+1])&0xff)<<16 |
		(int(sum[offset+2])&0xff)<<8 |
		(int(sum[offset+3]) & 0xff)
	otp := binCode % 1000000
	return fmt.Sprintf("%06d", otp), nil
}

func otpAuthURL(secret, accountLabel string) string {
	label := url.PathEscape(totpIssuer + ":" + accountLabel)
	values := url.Values{}
	values.Set("secret", secret)
	values.Set("issuer", totpIssuer)
	values.Set("algorithm", "SHA1")
	values.Set("digits", strconv.Itoa(totpDigits))
	values.Set("period", strconv.Itoa(totpPeriod))
	return "otpauth://totp/" + label + "?" + values.Encode()
}
