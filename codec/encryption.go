// Package codec encrypts Temporal payloads so verification tokens and
// payment proofs never sit in workflow history in clear text.
package codec

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"

	commonpb "go.temporal.io/api/common/v1"
	"go.temporal.io/sdk/converter"
	"google.golang.org/protobuf/proto"
)

const (
	MetadataEncodingEncrypted = "binary/encrypted"
	metadataEncoding          = "encoding"
	metadataKeyID             = "encryption-key-id"
)

// EncryptionCodec is an AES-256-GCM converter.PayloadCodec
type EncryptionCodec struct {
	KeyID string
	aead  cipher.AEAD
}

// NewEncryptionCodec creates a codec for a 32-byte key
func NewEncryptionCodec(key []byte) (*EncryptionCodec, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("encryption key must be 32 bytes, got %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return &EncryptionCodec{KeyID: "registration-key", aead: aead}, nil
}

// NewEncryptionDataConverter wraps the default data converter with encryption
func NewEncryptionDataConverter(key []byte) (converter.DataConverter, error) {
	c, err := NewEncryptionCodec(key)
	if err != nil {
		return nil, err
	}
	return converter.NewCodecDataConverter(converter.GetDefaultDataConverter(), c), nil
}

// Encode implements converter.PayloadCodec
func (c *EncryptionCodec) Encode(payloads []*commonpb.Payload) ([]*commonpb.Payload, error) {
	result := make([]*commonpb.Payload, len(payloads))
	for i, p := range payloads {
		plain, err := proto.Marshal(p)
		if err != nil {
			return payloads, fmt.Errorf("failed to marshal payload: %w", err)
		}

		nonce := make([]byte, c.aead.NonceSize())
		if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
			return payloads, fmt.Errorf("failed to generate nonce: %w", err)
		}

		result[i] = &commonpb.Payload{
			Metadata: map[string][]byte{
				metadataEncoding: []byte(MetadataEncodingEncrypted),
				metadataKeyID:    []byte(c.KeyID),
			},
			Data: c.aead.Seal(nonce, nonce, plain, nil),
		}
	}
	return result, nil
}

// Decode implements converter.PayloadCodec. Payloads that were not encrypted
// pass through unchanged.
func (c *EncryptionCodec) Decode(payloads []*commonpb.Payload) ([]*commonpb.Payload, error) {
	result := make([]*commonpb.Payload, len(payloads))
	for i, p := range payloads {
		if string(p.GetMetadata()[metadataEncoding]) != MetadataEncodingEncrypted {
			result[i] = p
			continue
		}

		data := p.GetData()
		size := c.aead.NonceSize()
		if len(data) < size {
			return payloads, fmt.Errorf("encrypted payload too short")
		}
		plain, err := c.aead.Open(nil, data[:size], data[size:], nil)
		if err != nil {
			return payloads, fmt.Errorf("failed to decrypt payload: %w", err)
		}

		result[i] = &commonpb.Payload{}
		if err := proto.Unmarshal(plain, result[i]); err != nil {
			return payloads, fmt.Errorf("failed to unmarshal payload: %w", err)
		}
	}
	return result, nil
}
