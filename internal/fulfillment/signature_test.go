package fulfillment

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

func TestSignMatchesBodyPlusKeyDigest(t *testing.T) {
	body := []byte(`{"order":{"status":"COMPLETED"}}`)
	sum := sha256.Sum256(append(append([]byte{}, body...), "second"...))
	got, err := Sign(body, "second", "SHA-256")
	require.NoError(t, err)
	require.Equal(t, hex.EncodeToString(sum[:]), got)

	md := md5.Sum(append(append([]byte{}, body...), "second"...))
	got, err = Sign(body, "second", "md5")
	require.NoError(t, err)
	require.Equal(t, hex.EncodeToString(md[:]), got)

	_, err = Sign(body, "second", "SHA1")
	require.ErrorIs(t, err, shared.ErrUnauthorized)
}

func TestParseSignatureHeader(t *testing.T) {
	parts := ParseSignatureHeader("sender=checkout; signature=ABC;algorithm=SHA-256;content=DOCUMENT;broken")
	require.Equal(t, "checkout", parts["sender"])
	require.Equal(t, "ABC", parts["signature"])
	require.Equal(t, "SHA-256", parts["algorithm"])
	require.NotContains(t, parts, "broken")
}

func TestVerify(t *testing.T) {
	body := []byte(`{"order":{"extOrderId":"5_1700000000","status":"COMPLETED"}}`)
	sig, err := Sign(body, "k2", "SHA-256")
	require.NoError(t, err)
	v := NewSignatureVerifier("k2")

	require.NoError(t, v.Verify("sender=checkout;signature="+sig+";algorithm=SHA-256", body))
	require.NoError(t, v.Verify("signature="+sig, body))

	cases := map[string]string{
		"missing header":    "",
		"missing signature": "sender=checkout;algorithm=SHA-256",
		"wrong signature":   "signature=" + strings.Repeat("0", len(sig)) + ";algorithm=SHA-256",
		"wrong algorithm":   "signature=" + sig + ";algorithm=MD5",
	}
	for name, header := range cases {
		err := v.Verify(header, body)
		require.ErrorIs(t, err, shared.ErrUnauthorized, name)
	}

	err = v.Verify("signature="+sig, []byte(`{"order":{"extOrderId":"6_1700000000","status":"COMPLETED"}}`))
	require.ErrorIs(t, err, shared.ErrUnauthorized)

	err = NewSignatureVerifier("").Verify("signature="+sig, body)
	require.ErrorIs(t, err, shared.ErrUnauthorized)
}
