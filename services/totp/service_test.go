package totp

import (
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tech-arch1tect/secondfactor/testutils"
)

func codeAt(t *testing.T, secret string, at time.Time) string {
	t.Helper()
	code, err := totp.GenerateCodeCustom(secret, at, totp.ValidateOpts{
		Period:    period,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	require.NoError(t, err)
	return code
}

func TestService_GenerateSecret(t *testing.T) {
	cfg := testutils.GetTestConfig()
	service := NewService(cfg, nil)

	key, err := service.GenerateSecret("user@example.com")
	require.NoError(t, err)
	require.NotNil(t, key)

	// 20 random bytes base32-encode to 32 characters.
	assert.Len(t, key.Secret, 32)

	uri, err := url.Parse(key.ProvisioningURI)
	require.NoError(t, err)
	assert.Equal(t, "otpauth", uri.Scheme)
	assert.Equal(t, "totp", uri.Host)
	assert.True(t, strings.Contains(uri.Path, "user@example.com"))
	assert.Equal(t, "Test App", uri.Query().Get("issuer"))
	assert.Equal(t, key.Secret, uri.Query().Get("secret"))
	assert.Equal(t, "30", uri.Query().Get("period"))
	assert.Equal(t, "6", uri.Query().Get("digits"))
	assert.Equal(t, "SHA1", uri.Query().Get("algorithm"))
}

func TestService_GenerateSecret_IssuerFallback(t *testing.T) {
	cfg := testutils.GetTestConfig()
	cfg.TOTP.Issuer = ""
	cfg.App.Name = "Fallback App"
	service := NewService(cfg, nil)

	key, err := service.GenerateSecret("user@example.com")
	require.NoError(t, err)

	uri, err := url.Parse(key.ProvisioningURI)
	require.NoError(t, err)
	assert.Equal(t, "Fallback App", uri.Query().Get("issuer"))
}

func TestService_ValidateCodeAt(t *testing.T) {
	cfg := testutils.GetTestConfig()
	service := NewService(cfg, nil)

	key, err := service.GenerateSecret("user@example.com")
	require.NoError(t, err)

	now := time.Date(2025, 6, 1, 12, 0, 15, 0, time.UTC)

	t.Run("current step matches", func(t *testing.T) {
		code := codeAt(t, key.Secret, now)
		assert.True(t, service.ValidateCodeAt(key.Secret, code, now))
	})

	t.Run("adjacent steps tolerated", func(t *testing.T) {
		previous := codeAt(t, key.Secret, now.Add(-30*time.Second))
		next := codeAt(t, key.Secret, now.Add(30*time.Second))
		assert.True(t, service.ValidateCodeAt(key.Secret, previous, now))
		assert.True(t, service.ValidateCodeAt(key.Secret, next, now))
	})

	t.Run("two steps out rejected", func(t *testing.T) {
		stale := codeAt(t, key.Secret, now.Add(-60*time.Second))
		assert.False(t, service.ValidateCodeAt(key.Secret, stale, now))
	})

	t.Run("code from t=0 rejected 90s later", func(t *testing.T) {
		code := codeAt(t, key.Secret, now)
		assert.False(t, service.ValidateCodeAt(key.Secret, code, now.Add(90*time.Second)))
	})

	t.Run("malformed codes are just invalid", func(t *testing.T) {
		assert.False(t, service.ValidateCodeAt(key.Secret, "", now))
		assert.False(t, service.ValidateCodeAt(key.Secret, "12345", now))
		assert.False(t, service.ValidateCodeAt(key.Secret, "1234567", now))
		assert.False(t, service.ValidateCodeAt(key.Secret, "abcdef", now))
	})

	t.Run("empty secret never validates", func(t *testing.T) {
		assert.False(t, service.ValidateCodeAt("", "123456", now))
	})
}

func TestService_ValidateCodeAt_WiderWindow(t *testing.T) {
	cfg := testutils.GetTestConfig()
	cfg.TOTP.WindowSteps = 2
	service := NewService(cfg, nil)

	key, err := service.GenerateSecret("user@example.com")
	require.NoError(t, err)

	now := time.Date(2025, 6, 1, 12, 0, 15, 0, time.UTC)
	twoStepsBack := codeAt(t, key.Secret, now.Add(-60*time.Second))
	threeStepsBack := codeAt(t, key.Secret, now.Add(-90*time.Second))

	assert.True(t, service.ValidateCodeAt(key.Secret, twoStepsBack, now))
	assert.False(t, service.ValidateCodeAt(key.Secret, threeStepsBack, now))
}
