package auth

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image/png"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	totpPeriod     = 30
	totpDigits     = otp.DigitsSix
	totpSecretSize = 20 // 20 raw bytes -> 32 base32 characters

	// totpSkew absorbs clock drift between the server and the code-generating
	// device: ±2 steps of 30s. Widening it trades security margin for
	// usability; do not change without revisiting the threat model.
	totpSkew = 2

	qrImageSize = 200
)

// Enrollment is the material handed to a user starting two-factor setup.
type Enrollment struct {
	Secret   string // 32-character base32 shared secret
	URL      string // otpauth:// provisioning URI
	QRPNGB64 string // PNG rendering of the URI, base64-encoded
}

// TOTPManager generates shared secrets and verifies one-time codes.
type TOTPManager struct {
	issuer string
}

// NewTOTPManager creates a TOTP manager labeling secrets with the given issuer
func NewTOTPManager(issuer string) *TOTPManager {
	return &TOTPManager{issuer: issuer}
}

// BeginEnrollment generates a fresh shared secret for the account and renders
// its provisioning URI and a scannable QR image. The secret is not yet
// committed; it only affects login after a first successful verification.
func (m *TOTPManager) BeginEnrollment(account string) (*Enrollment, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      m.issuer,
		AccountName: account,
		Period:      totpPeriod,
		SecretSize:  totpSecretSize,
		Digits:      totpDigits,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate totp secret: %w", err)
	}

	img, err := key.Image(qrImageSize, qrImageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to render provisioning image: %w", err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode provisioning image: %w", err)
	}

	return &Enrollment{
		Secret:   key.Secret(),
		URL:      key.URL(),
		QRPNGB64: base64.StdEncoding.EncodeToString(buf.Bytes()),
	}, nil
}

// VerifyCode reports whether code is valid for secret at the given instant,
// within the drift tolerance window. Any parse or validation failure is false.
func (m *TOTPManager) VerifyCode(secret, code string, at time.Time) bool {
	ok, err := totp.ValidateCustom(code, secret, at, totp.ValidateOpts{
		Period:    totpPeriod,
		Skew:      totpSkew,
		Digits:    totpDigits,
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && ok
}
