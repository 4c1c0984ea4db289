package mpcparty1

import (
	"errors"
	"math/big"

	"github.com/bnb-chain/tss-lib/common"
)

// EphKeyGenFirstMsg is the sign first round's response: a commitment to
// party one's ephemeral public point R1=k1*G.
type EphKeyGenFirstMsg struct {
	Commitment *big.Int `json:"commitment"`
}

// EphEcKeyPair is party one's retained ephemeral secret for the round.
type EphEcKeyPair struct {
	SecretShare *big.Int `json:"secret_share"`
	PublicShare *ECPoint `json:"public_share"`
}

// SignFirst draws a fresh ephemeral keypair (k1, R1) and commits to R1.
// The ephemeral secret never leaves the server.
func SignFirst() (*EphKeyGenFirstMsg, *EphEcKeyPair, error) {
	q := Q()
	k1 := common.GetRandomPositiveInt(q)
	R1 := BasePointMult(k1)
	cmt := Commit(R1.X, R1.Y)

	return &EphKeyGenFirstMsg{Commitment: cmt.C}, &EphEcKeyPair{SecretShare: k1, PublicShare: R1}, nil
}

// Party2SignMsg is what party two sends in the sign second round: its
// ephemeral public point and the Paillier ciphertext of its partial
// signature, computed locally by party two from its share x2, the message
// hash, and party one's encrypted share (homomorphically, without ever
// learning x1).
type Party2SignMsg struct {
	EphemeralPublic  *ECPoint `json:"ephemeral_public"`
	PartialSigCipher *big.Int `json:"partial_sig_cipher"`
}

// Signature is the finished, low-S-normalized ECDSA signature over
// secp256k1, with a recovery id enabling public-key recovery.
type Signature struct {
	R     *big.Int `json:"r"`
	S     *big.Int `json:"s"`
	Recid int      `json:"recid"`
}

// ErrDecryptFailed wraps any Paillier decryption failure during signature
// combination.
var ErrDecryptFailed = errors.New("mpcparty1: partial signature decryption failed")

// SignSecond combines party one's ephemeral secret k1 with party
// two's ephemeral public point and homomorphically-computed partial
// signature ciphertext to produce the final (r, s, recid). This is the
// Lindell-2017 two-party signing combination: party two computes, under
// Paillier encryption and without ever learning x1,
//
//	c3 = Enc(k2^-1 * (H(m) + r*x1*x2))
//
// (using HomoMult/HomoAdd against party one's Enc(x1)), and party one
// recovers the plaintext partial signature by decrypting c3 and finishing
// the combination with its own ephemeral secret k1.
func SignSecond(priv *Party1Private, eph *EphEcKeyPair, msg *Party2SignMsg) (*Signature, error) {
	q := Q()

	// R = k1*R2 = k1*k2*G, the full ephemeral point both parties agree on.
	combined := msg.EphemeralPublic.Mult(eph.SecretShare)
	r := new(big.Int).Mod(combined.X, q)
	if r.Sign() == 0 {
		return nil, errors.New("mpcparty1: signature r is zero, retry with a fresh ephemeral key")
	}

	sTag, err := priv.PaillierKeyPair.PrivateKey.Decrypt(msg.PartialSigCipher)
	if err != nil {
		return nil, ErrDecryptFailed
	}

	k1Inv := modInverse(eph.SecretShare, q)
	s := new(big.Int).Mod(new(big.Int).Mul(sTag, k1Inv), q)

	recid := 0
	if combined.Y.Bit(0) == 1 {
		recid |= 1
	}
	halfQ := new(big.Int).Rsh(q, 1)
	if s.Cmp(halfQ) == 1 {
		s = new(big.Int).Sub(q, s)
		recid ^= 1
	}
	if s.Sign() == 0 {
		return nil, errors.New("mpcparty1: signature s is zero, retry with a fresh ephemeral key")
	}

	return &Signature{R: r, S: s, Recid: recid}, nil
}

func modInverse(x, q *big.Int) *big.Int {
	return new(big.Int).ModInverse(x, q)
}
