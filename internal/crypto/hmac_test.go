package crypto

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeadersAtDeterministic(t *testing.T) {
	auth := &HMACAuth{
		Key:    "key-id",
		Secret: base64.StdEncoding.EncodeToString([]byte("secret")),
	}

	h1 := auth.HeadersAt("POST", "/trade-api/v2/portfolio/orders", `{"x":1}`, 1700000000)
	h2 := auth.HeadersAt("POST", "/trade-api/v2/portfolio/orders", `{"x":1}`, 1700000000)

	require.Equal(t, h1, h2)
	assert.Equal(t, "key-id", h1["VENUE-ACCESS-KEY"])
	assert.Equal(t, "1700000000", h1["VENUE-ACCESS-TIMESTAMP"])
	assert.NotEmpty(t, h1["VENUE-ACCESS-SIGNATURE"])
}

func TestHeadersAtMessageSensitive(t *testing.T) {
	auth := &HMACAuth{Key: "k", Secret: base64.StdEncoding.EncodeToString([]byte("s"))}

	a := auth.HeadersAt("GET", "/a", "", 1)["VENUE-ACCESS-SIGNATURE"]
	b := auth.HeadersAt("GET", "/b", "", 1)["VENUE-ACCESS-SIGNATURE"]
	assert.NotEqual(t, a, b)
}

func TestStringRedactsSecrets(t *testing.T) {
	auth := &HMACAuth{Key: "key-abcdef", Secret: "secret-abcdef"}
	s := auth.String()
	assert.NotContains(t, s, "abcdef")
	assert.Contains(t, s, "****")
}
