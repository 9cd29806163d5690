package webhook

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignAndVerify(t *testing.T) {
	secret := "s3cr3t"
	body := []byte(`{"action":"opened","repository":{"id":1}}`)

	sig := Sign(secret, body)
	assert.Regexp(t, "^sha256=[0-9a-f]{64}$", sig)

	assert.NoError(t, Verify(sig, body, secret))
}

func TestVerify_TamperedBody(t *testing.T) {
	secret := "s3cr3t"
	body := []byte(`{"action":"opened"}`)
	sig := Sign(secret, body)

	tampered := []byte(`{"action":"closed"}`)
	assert.Error(t, Verify(sig, tampered, secret))
}

func TestVerify_WrongSecret(t *testing.T) {
	body := []byte(`{"action":"opened"}`)
	sig := Sign("right", body)

	assert.Error(t, Verify(sig, body, "wrong"))
}

func TestVerify_MalformedSignature(t *testing.T) {
	body := []byte(`{}`)

	assert.Error(t, Verify("", body, "secret"))
	assert.Error(t, Verify("sha256=nothex", body, "secret"))
	assert.Error(t, Verify("md5=abcdef", body, "secret"))
}

func TestNewSecret(t *testing.T) {
	a, err := NewSecret()
	require.NoError(t, err)
	b, err := NewSecret()
	require.NoError(t, err)

	assert.Len(t, a, 40, "20 bytes hex encoded")
	assert.NotEqual(t, a, b)
}
