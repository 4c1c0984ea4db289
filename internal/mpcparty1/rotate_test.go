package mpcparty1

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRotatePreservesPublicKey(t *testing.T) {
	mk := buildMasterKeyForTest(t)

	_, witness, rho1, err := RotationFirst()
	require.NoError(t, err)

	rho2 := big.NewInt(0).SetInt64(555333)
	rotated, err := Rotate(witness, rho1, rho2, mk)
	require.NoError(t, err)

	assert.True(t, rotated.PublicQ.Equal(mk.PublicQ))
	assert.NotEqual(t, mk.EncryptedX1.String(), rotated.EncryptedX1.String())
}

func TestRotateRejectsBadWitness(t *testing.T) {
	mk := buildMasterKeyForTest(t)
	_, witness, rho1, err := RotationFirst()
	require.NoError(t, err)
	witness.Commitment.D[1] = big.NewInt(0).SetInt64(1)

	_, err = Rotate(witness, rho1, big.NewInt(2), mk)
	assert.ErrorIs(t, err, ErrBadCommitment)
}
