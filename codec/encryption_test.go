package codec

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	commonpb "go.temporal.io/api/common/v1"
	"go.temporal.io/sdk/converter"

	"farmer-registration/models"
)

var testKey = bytes.Repeat([]byte{7}, 32)

func TestNewEncryptionCodecRejectsBadKey(t *testing.T) {
	_, err := NewEncryptionCodec([]byte("short"))
	assert.Error(t, err)
	_, err = NewEncryptionDataConverter(nil)
	assert.Error(t, err)
}

func TestEncodeHidesToken(t *testing.T) {
	dc, err := NewEncryptionDataConverter(testKey)
	require.NoError(t, err)

	in := models.FinalizeInput{ReferenceID: "REG-123", OTPToken: "tok_secret", Proof: models.PaymentProof{PaymentID: "pay_1"}}
	payload, err := dc.ToPayload(in)
	require.NoError(t, err)

	assert.Equal(t, MetadataEncodingEncrypted, string(payload.GetMetadata()["encoding"]))
	assert.NotContains(t, string(payload.GetData()), "tok_secret")

	var out models.FinalizeInput
	require.NoError(t, dc.FromPayload(payload, &out))
	assert.Equal(t, in, out)
}

func TestDecodeWithWrongKeyFails(t *testing.T) {
	c1, err := NewEncryptionCodec(testKey)
	require.NoError(t, err)
	c2, err := NewEncryptionCodec(bytes.Repeat([]byte{9}, 32))
	require.NoError(t, err)

	plain, err := converter.GetDefaultDataConverter().ToPayload("hello")
	require.NoError(t, err)
	encoded, err := c1.Encode([]*commonpb.Payload{plain})
	require.NoError(t, err)

	_, err = c2.Decode(encoded)
	assert.Error(t, err)
}

func TestDecodePassesThroughPlainPayloads(t *testing.T) {
	c, err := NewEncryptionCodec(testKey)
	require.NoError(t, err)

	plain, err := converter.GetDefaultDataConverter().ToPayload("hello")
	require.NoError(t, err)

	decoded, err := c.Decode([]*commonpb.Payload{plain})
	require.NoError(t, err)
	assert.Same(t, plain, decoded[0])
}
