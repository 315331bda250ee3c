package totp_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheMichaelB/vaultrest/internal/services/totp"
)

// RFC 6238 test secret, base32 of "12345678901234567890".
const rfcSecret = "GEZDGNBVGY3TQOJQGEZDGNBVGY3TQOJQ"

func TestTOTPService_GenerateCode(t *testing.T) {
	service := totp.NewService()

	tests := []struct {
		name    string
		secret  string
		wantErr bool
		errMsg  string
	}{
		{
			name:   "valid secret",
			secret: "JBSWY3DPEHPK3PXP",
		},
		{
			name:   "lowercase secret",
			secret: "jbswy3dpehpk3pxp",
		},
		{
			name:    "empty secret",
			secret:  "",
			wantErr: true,
			errMsg:  "secret cannot be empty",
		},
		{
			name:    "invalid base32",
			secret:  "INVALID!@#$",
			wantErr: true,
			errMsg:  "failed to generate code",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, err := service.GenerateCode(tt.secret)

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
				assert.Empty(t, code)
				return
			}

			require.NoError(t, err)
			assert.Len(t, code, 6)
			assert.Regexp(t, `^\d{6}$`, code)
		})
	}
}

func TestTOTPService_ValidateCode(t *testing.T) {
	service := totp.NewService()
	secret := "JBSWY3DPEHPK3PXP"

	code, err := service.GenerateCode(secret)
	require.NoError(t, err)

	assert.True(t, service.ValidateCode(secret, code))
	assert.False(t, service.ValidateCode(secret, "000000x"))
	assert.False(t, service.ValidateCode("", code))
	assert.False(t, service.ValidateCode(secret, ""))
}

func TestTOTPService_GenerateCodeAtTime(t *testing.T) {
	tests := []struct {
		name   string
		digits int
		alg    string
		at     time.Time
		want   string
	}{
		{"sha1 six digits at 59", 6, "SHA1", time.Unix(59, 0), "287082"},
		{"sha1 eight digits at 59", 8, "SHA1", time.Unix(59, 0), "94287082"},
		{"sha1 eight digits at 1111111109", 8, "sha1", time.Unix(1111111109, 0), "07081804"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service, err := totp.NewServiceWithConfig(30, tt.digits, tt.alg)
			require.NoError(t, err)

			code, err := service.GenerateCodeAtTime(rfcSecret, tt.at)
			require.NoError(t, err)
			assert.Equal(t, tt.want, code)
		})
	}

	// Same window yields the same code
	service := totp.NewService()
	base := time.Unix(1700000010, 0)
	c1, err := service.GenerateCodeAtTime(rfcSecret, base)
	require.NoError(t, err)
	c2, err := service.GenerateCodeAtTime(rfcSecret, base.Add(10*time.Second))
	require.NoError(t, err)
	assert.Equal(t, c1, c2)

	_, err = service.GenerateCodeAtTime("", base)
	assert.Error(t, err)
}

func TestTOTPService_GetTimeWindow(t *testing.T) {
	service := totp.NewService()

	current, remaining := service.GetTimeWindow()

	assert.Equal(t, time.Now().Unix()/30, current)
	assert.Greater(t, remaining, time.Duration(0))
	assert.LessOrEqual(t, remaining, 30*time.Second)
}

func TestTOTPService_IsValidSecret(t *testing.T) {
	service := totp.NewService()

	assert.NoError(t, service.IsValidSecret("JBSWY3DPEHPK3PXP"))
	assert.NoError(t, service.IsValidSecret(rfcSecret))

	err := service.IsValidSecret("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot be empty")

	err = service.IsValidSecret("INVALID!@#$")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Decoding of secret")
}

func TestTOTPService_CustomConfig(t *testing.T) {
	service, err := totp.NewServiceWithConfig(60, 8, "SHA256")
	require.NoError(t, err)

	code, err := service.GenerateCode("JBSWY3DPEHPK3PXP")
	require.NoError(t, err)
	assert.Regexp(t, `^\d{8}$`, code)
	assert.True(t, service.ValidateCode("JBSWY3DPEHPK3PXP", code))

	current, remaining := service.GetTimeWindow()
	assert.Equal(t, time.Now().Unix()/60, current)
	assert.LessOrEqual(t, remaining, 60*time.Second)

	_, err = totp.NewServiceWithConfig(0, 6, "SHA1")
	assert.Error(t, err)
	_, err = totp.NewServiceWithConfig(30, 7, "SHA1")
	assert.Error(t, err)
	_, err = totp.NewServiceWithConfig(30, 6, "SHA3")
	assert.Error(t, err)
}

func TestTOTPService_TwoFactorToken(t *testing.T) {
	service := totp.NewService()

	t.Run("plain secret", func(t *testing.T) {
		token, err := service.TwoFactorToken("JBSWY3DPEHPK3PXP")
		require.NoError(t, err)
		assert.Regexp(t, `^\d{6}$`, string(token))
	})

	t.Run("key uri", func(t *testing.T) {
		uri := "otpauth://totp/Vault:alice@example.com?secret=" + rfcSecret + "&issuer=Vault&digits=8&period=30&algorithm=SHA1"
		token, err := service.TwoFactorToken(uri)
		require.NoError(t, err)
		assert.Regexp(t, `^\d{8}$`, string(token))

		svc, secret, err := totp.FromKeyURI(uri)
		require.NoError(t, err)
		assert.Equal(t, rfcSecret, strings.ToUpper(secret))
		code, err := svc.GenerateCodeAtTime(secret, time.Unix(59, 0))
		require.NoError(t, err)
		assert.Equal(t, "94287082", code)
	})

	t.Run("hotp uri rejected", func(t *testing.T) {
		_, err := service.TwoFactorToken("otpauth://hotp/Vault:bob?secret=" + rfcSecret + "&counter=1")
		assert.Error(t, err)
	})

	t.Run("empty", func(t *testing.T) {
		_, err := service.TwoFactorToken("")
		assert.Error(t, err)
	})
}

func BenchmarkTOTPService_GenerateCode(b *testing.B) {
	service := totp.NewService()
	secret := "JBSWY3DPEHPK3PXP"

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := service.GenerateCode(secret); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkTOTPService_ValidateCode(b *testing.B) {
	service := totp.NewService()
	secret := "JBSWY3DPEHPK3PXP"
	code, _ := service.GenerateCode(secret)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		service.ValidateCode(secret, code)
	}
}
