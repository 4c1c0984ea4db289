// Package mpcparty1 implements party one's half of the Lindell-2017
// two-party ECDSA protocol over secp256k1: key generation, HD chain-code
// derivation, signing, and coin-flip key rotation. Party two is the
// external wallet client; this package only ever holds and advances party
// one's state.
//
// Paillier encryption and bounded randomness come from
// github.com/bnb-chain/tss-lib (crypto/paillier, common); the commitment and
// proof machinery follows the shape of its crypto/commitments and
// crypto/schnorr, reimplemented here for a two-party,
// HTTP-request/response shape: tss-lib's own crypto.ECPoint
// and schnorr.ZKProof types are tied to the tss package's global curve
// registration
// (tss.SetCurve/tss.EC()) built for its n-party round-based state machine,
// which this engine has no use for, so points and proofs here are
// plain JSON-serializable structs built directly on btcec/v2 curve
// arithmetic instead.
package mpcparty1

import (
	"crypto/elliptic"
	"crypto/sha256"
	"math/big"

	"github.com/bnb-chain/tss-lib/common"
	"github.com/bnb-chain/tss-lib/crypto/paillier"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// Curve returns the secp256k1 curve shared by every operation in this
// package.
func Curve() elliptic.Curve { return btcec.S256() }

// Q is the group order of secp256k1, used for all scalar arithmetic.
func Q() *big.Int { return btcec.S256().N }

// ECPoint is a JSON-serializable point on secp256k1, standing in for
// tss-lib's crypto.ECPoint in contexts where messages cross the wire.
type ECPoint struct {
	X *big.Int `json:"x"`
	Y *big.Int `json:"y"`
}

func NewECPoint(x, y *big.Int) *ECPoint { return &ECPoint{X: x, Y: y} }

// BasePointMult returns k*G.
func BasePointMult(k *big.Int) *ECPoint {
	x, y := Curve().ScalarBaseMult(k.Bytes())
	return &ECPoint{X: x, Y: y}
}

// Mult returns k*P.
func (p *ECPoint) Mult(k *big.Int) *ECPoint {
	x, y := Curve().ScalarMult(p.X, p.Y, k.Bytes())
	return &ECPoint{X: x, Y: y}
}

// Add returns p+o.
func (p *ECPoint) Add(o *ECPoint) *ECPoint {
	x, y := Curve().Add(p.X, p.Y, o.X, o.Y)
	return &ECPoint{X: x, Y: y}
}

func (p *ECPoint) Equal(o *ECPoint) bool {
	return p != nil && o != nil && p.X.Cmp(o.X) == 0 && p.Y.Cmp(o.Y) == 0
}

func (p *ECPoint) IsOnCurve() bool {
	return p != nil && p.X != nil && p.Y != nil && Curve().IsOnCurve(p.X, p.Y)
}

// SECCompressed returns the SEC1-compressed encoding of the point, used as
// hash input for the chain code and for HD child derivation.
func (p *ECPoint) SECCompressed() []byte {
	var xf, yf secp256k1.FieldVal
	xf.SetByteSlice(p.X.Bytes())
	yf.SetByteSlice(p.Y.Bytes())
	pub := btcec.NewPublicKey(&xf, &yf)
	return pub.SerializeCompressed()
}

// Commitment is a hash commit/decommit pair, algorithmically ported from
// tss-lib's crypto/commitments.HashCommitDecommit (a random blinding value
// plus the committed secrets, hashed together) but over SHA-256 rather than
// tss-lib's SHA3-256, matching this package's other use of crypto/sha256
// for fewer imported hash families.
type Commitment struct {
	C *big.Int   `json:"c"`
	D []*big.Int `json:"d"`
}

// Commit hashes a freshly drawn 256-bit blinding value together with
// secrets into C, retaining both as D for the later decommit/verify step.
func Commit(secrets ...*big.Int) *Commitment {
	r := common.GetRandomPositiveInt(new(big.Int).Lsh(big.NewInt(1), 256))
	parts := append([]*big.Int{r}, secrets...)
	return &Commitment{C: digestInts(parts), D: parts}
}

// Verify recomputes the digest over cmt.D and checks it against cmt.C.
func (cmt *Commitment) Verify() bool {
	if cmt == nil || cmt.C == nil || len(cmt.D) == 0 {
		return false
	}
	return digestInts(cmt.D).Cmp(cmt.C) == 0
}

// Secrets returns the committed values, excluding the blinding factor.
func (cmt *Commitment) Secrets() []*big.Int {
	if cmt == nil || len(cmt.D) == 0 {
		return nil
	}
	return cmt.D[1:]
}

func digestInts(parts []*big.Int) *big.Int {
	h := sha256.New()
	for _, p := range parts {
		if p == nil {
			h.Write([]byte{0})
			continue
		}
		h.Write(p.Bytes())
	}
	return new(big.Int).SetBytes(h.Sum(nil))
}

// DLogProof is a non-interactive Schnorr proof of knowledge of the discrete
// log x such that X = x*G, algorithmically ported from tss-lib's
// crypto/schnorr.ZKProof (Fiat-Shamir over SHA-256 rather than tss-lib's
// SHA512/256, to reuse this package's single hash import).
type DLogProof struct {
	Alpha *ECPoint `json:"alpha"`
	T     *big.Int `json:"t"`
}

// Prove builds a DLogProof that the caller knows x where X = x*G.
func Prove(x *big.Int, X *ECPoint) *DLogProof {
	q := Q()
	a := common.GetRandomPositiveInt(q)
	alpha := BasePointMult(a)

	c := challenge(X, alpha)
	t := new(big.Int).Mod(new(big.Int).Add(a, new(big.Int).Mul(c, x)), q)
	return &DLogProof{Alpha: alpha, T: t}
}

// Verify checks the proof against the claimed point X.
func (pf *DLogProof) Verify(X *ECPoint) bool {
	if pf == nil || pf.Alpha == nil || pf.T == nil || X == nil {
		return false
	}
	c := challenge(X, pf.Alpha)
	lhs := BasePointMult(pf.T)
	rhs := pf.Alpha.Add(X.Mult(c))
	return lhs.Equal(rhs)
}

func challenge(X, alpha *ECPoint) *big.Int {
	h := sha256.New()
	for _, v := range []*big.Int{X.X, X.Y, alpha.X, alpha.Y} {
		h.Write(v.Bytes())
	}
	sum := h.Sum(nil)
	return new(big.Int).Mod(new(big.Int).SetBytes(sum), Q())
}

// PaillierKeyPair bundles the keys minted in keygen, carried through the
// store as a single JSON artifact (store.KindPaillierKeyPair).
type PaillierKeyPair struct {
	PublicKey  *paillier.PublicKey  `json:"public_key"`
	PrivateKey *paillier.PrivateKey `json:"private_key"`
}

// paillier.PublicKey and PrivateKey are plain structs of *big.Int fields,
// so they already round-trip through encoding/json without any custom
// MarshalJSON/UnmarshalJSON here.
