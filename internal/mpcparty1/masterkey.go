package mpcparty1

import (
	"crypto/hmac"
	"crypto/sha512"
	"math/big"
)

// MasterKey1 is party one's finalized, derivable key material: the joint
// public key, party one's Paillier-encrypted secret share, and the shared
// chain code. This is the Party1MasterKey artifact and the document
// mirrored to the vault.
type MasterKey1 struct {
	PublicQ     *ECPoint         `json:"public_q"`
	EncryptedX1 *big.Int         `json:"encrypted_x1"`
	Paillier    *PaillierKeyPair `json:"paillier_key_pair"`
	ChainCode   []byte           `json:"chain_code"`
}

// SetMasterKey assembles a MasterKey1 from the keygen and chain-code
// outputs, run once when the chain-code agreement completes.
func SetMasterKey(jointPub *ECPoint, priv *Party1Private, chainCode []byte) *MasterKey1 {
	return &MasterKey1{
		PublicQ:     jointPub,
		EncryptedX1: priv.EncryptedX1,
		Paillier:    &priv.PaillierKeyPair,
		ChainCode:   chainCode,
	}
}

// GetChild derives the master key at the given BIP32-style path, expressed
// as a sequence of non-hardened child indices. Unlike standard BIP32, which
// tweaks an additively-shared private key by addition, this key is shared
// multiplicatively (x = x1*x2), so each step tweaks the public key and
// party one's encrypted share by the SAME scalar multiplicatively: the
// HMAC-SHA512 "left 256 bits" output (il) becomes a multiplier rather than
// an addend, Q' = il*Q and Enc(x1') = Enc(x1)^il (Paillier HomoMult), and
// the "right 256 bits" (ir) becomes the next level's chain code exactly as
// in standard BIP32. This mirrors tss-lib's own crypto/ckd child derivation
// shape while swapping its additive combine step for the multiplicative one
// the sharing scheme requires.
func (mk *MasterKey1) GetChild(path []*big.Int) (*MasterKey1, error) {
	pub := mk.PublicQ
	enc := mk.EncryptedX1
	chainCode := mk.ChainCode

	for _, index := range path {
		il, next := deriveTweak(chainCode, pub, index)
		pub = pub.Mult(il)
		var err error
		enc, err = mk.Paillier.PublicKey.HomoMult(il, enc)
		if err != nil {
			return nil, err
		}
		chainCode = next
	}

	return &MasterKey1{
		PublicQ:     pub,
		EncryptedX1: enc,
		Paillier:    mk.Paillier,
		ChainCode:   chainCode,
	}, nil
}

// deriveTweak computes HMAC-SHA512(chainCode, serialize(pub) || index),
// splitting the 64-byte output into il (reduced mod the curve order, used
// as the multiplicative tweak) and ir (the next chain code).
func deriveTweak(chainCode []byte, pub *ECPoint, index *big.Int) (il *big.Int, ir []byte) {
	mac := hmac.New(sha512.New, chainCode)
	mac.Write(pub.SECCompressed())
	mac.Write(leftPad32(index.Bytes()))
	sum := mac.Sum(nil)

	il = new(big.Int).Mod(new(big.Int).SetBytes(sum[:32]), Q())
	ir = sum[32:]
	return il, ir
}

func leftPad32(b []byte) []byte {
	if len(b) >= 32 {
		return b
	}
	out := make([]byte, 32)
	copy(out[32-len(b):], b)
	return out
}
