package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	env, err := NewEnvelope(TypeActivate, 7, 123456789, "desk-a", ActivatePayload{Y: 0.5})
	require.NoError(t, err)

	data, err := env.Encode()
	require.NoError(t, err)

	got, err := DecodeEnvelope(data)
	require.NoError(t, err)
	assert.Equal(t, TypeActivate, got.Type)
	assert.Equal(t, uint64(7), got.Seq)
	assert.Equal(t, uint64(123456789), got.MonoNs)
	assert.Equal(t, "desk-a", got.Source)

	var p ActivatePayload
	require.NoError(t, got.DecodePayload(&p))
	assert.Equal(t, 0.0, p.X)
	assert.Equal(t, 0.5, p.Y)
}

func TestEnvelopeEmptyPayload(t *testing.T) {
	env, err := NewEnvelope(TypeActivated, 1, 0, "desk-b", nil)
	require.NoError(t, err)

	data, err := env.Encode()
	require.NoError(t, err)

	got, err := DecodeEnvelope(data)
	require.NoError(t, err)
	assert.Empty(t, got.Payload)
}

func TestDecodeUnknownType(t *testing.T) {
	_, err := DecodeEnvelope([]byte(`{"v":1,"type":"teleport","seq":1,"ts":0,"src":"x"}`))
	assert.ErrorIs(t, err, ErrUnknownType)
}

func TestDecodeVersionMismatch(t *testing.T) {
	_, err := DecodeEnvelope([]byte(`{"v":2,"type":"hello","seq":1,"ts":0,"src":"x"}`))
	assert.ErrorIs(t, err, ErrVersionMismatch)
}

func TestDecodeMalformed(t *testing.T) {
	_, err := DecodeEnvelope([]byte(`{"v":1,`))
	assert.Error(t, err)
}

func TestReservedPhysicsTypeParses(t *testing.T) {
	env, err := NewEnvelope(TypePhysics, 3, 0, "desk-a", map[string]float64{"gravity": 9.8})
	require.NoError(t, err)
	data, err := env.Encode()
	require.NoError(t, err)
	_, err = DecodeEnvelope(data)
	assert.NoError(t, err)
}
