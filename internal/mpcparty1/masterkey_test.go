package mpcparty1

import (
	"context"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildMasterKeyForTest(t *testing.T) *MasterKey1 {
	t.Helper()
	_, witness, kp, err := KeyGenFirst()
	require.NoError(t, err)
	_, party2Msg := party2KeyGen()
	jointPub, priv, err := KeyGenSecond(context.Background(), witness, kp, party2Msg)
	require.NoError(t, err)
	return SetMasterKey(jointPub, priv, []byte("0123456789abcdef0123456789abcdef"))
}

func TestGetChildTweaksPublicKeyButNotDeterminesX1Change(t *testing.T) {
	mk := buildMasterKeyForTest(t)

	child, err := mk.GetChild([]*big.Int{big.NewInt(0)})
	require.NoError(t, err)

	assert.False(t, child.PublicQ.Equal(mk.PublicQ))
	assert.NotEqual(t, mk.ChainCode, child.ChainCode)

	decrypted, err := mk.Paillier.PrivateKey.Decrypt(child.EncryptedX1)
	require.NoError(t, err)
	assert.NotEqual(t, 0, decrypted.Sign())
}

func TestGetChildIsDeterministic(t *testing.T) {
	mk := buildMasterKeyForTest(t)
	path := []*big.Int{big.NewInt(3), big.NewInt(7)}

	child1, err := mk.GetChild(path)
	require.NoError(t, err)
	child2, err := mk.GetChild(path)
	require.NoError(t, err)

	assert.True(t, child1.PublicQ.Equal(child2.PublicQ))
	assert.Equal(t, child1.ChainCode, child2.ChainCode)
}

func TestGetChildEmptyPathIsIdentity(t *testing.T) {
	mk := buildMasterKeyForTest(t)
	child, err := mk.GetChild(nil)
	require.NoError(t, err)
	assert.True(t, child.PublicQ.Equal(mk.PublicQ))
	assert.Equal(t, mk.ChainCode, child.ChainCode)
}
