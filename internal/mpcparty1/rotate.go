package mpcparty1

import (
	"math/big"

	"github.com/bnb-chain/tss-lib/common"
)

// RotateCommitMessage1M is the rotation first round's response: a
// commitment to party one's refresh factor rho1.
type RotateCommitMessage1M struct {
	Commitment *big.Int `json:"commitment"`
}

// RotateCommitMessage1R is the retained decommitment.
type RotateCommitMessage1R struct {
	Commitment *Commitment `json:"commitment"`
}

// RotateRandom1 is party one's own refresh factor.
type RotateRandom1 struct {
	Rho1 *big.Int `json:"rho1"`
}

// RotationFirst runs the rotation commit round: draw rho1 and commit to it.
func RotationFirst() (*RotateCommitMessage1M, *RotateCommitMessage1R, *RotateRandom1, error) {
	rho1 := common.GetRandomPositiveInt(Q())
	cmt := Commit(rho1)
	return &RotateCommitMessage1M{Commitment: cmt.C}, &RotateCommitMessage1R{Commitment: cmt}, &RotateRandom1{Rho1: rho1}, nil
}

// Rotate runs the rotation combine round: verify party one's own
// commitment, combine rho1 and party two's revealed rho2 into a joint
// refresh factor rho = rho1*rho2 mod q, and homomorphically refresh the
// encrypted share as Enc(x1') = Enc(x1)^rho. The joint public key Q is left
// untouched: refreshing x1 -> x1*rho and (implicitly, on party two's side)
// x2 -> x2*rho^-1 preserves the product x1*x2, so Q=x1*x2*G is unchanged;
// this is the "rotation preserves the public key" property.
func Rotate(witness *RotateCommitMessage1R, rho1 *RotateRandom1, rho2 *big.Int, mk *MasterKey1) (*MasterKey1, error) {
	if !witness.Commitment.Verify() {
		return nil, ErrBadCommitment
	}
	q := Q()
	rho := new(big.Int).Mod(new(big.Int).Mul(rho1.Rho1, rho2), q)

	encX1, err := mk.Paillier.PublicKey.HomoMult(rho, mk.EncryptedX1)
	if err != nil {
		return nil, err
	}

	return &MasterKey1{
		PublicQ:     mk.PublicQ,
		EncryptedX1: encX1,
		Paillier:    mk.Paillier,
		ChainCode:   mk.ChainCode,
	}, nil
}

// Party2CoinFlip1stMsg is party two's rotation payload: its refresh factor
// rho2, revealed directly since party two's own commit/reveal discipline
// (if any) is its own concern, opaque to party one.
type Party2CoinFlip1stMsg struct {
	Rho2 *big.Int `json:"rho2"`
}

// CoinFlipParty1SecondMsg is party one's second-round response: the refresh
// factor rho1 it committed to in RotationFirst. The commitment's blinding
// value is not included, so this message alone does not let party two
// recompute the commitment it holds.
type CoinFlipParty1SecondMsg struct {
	Rho1 *big.Int `json:"rho1"`
}

// RotationParty1Msg1 confirms the rotated master key's (unchanged) public
// key, so party two can cross-check the rotation preserved it on its own
// side too.
type RotationParty1Msg1 struct {
	PublicQ *ECPoint `json:"public_q"`
}

// RotationSecond runs the combine round of the coin-flip rotation protocol:
// it decommits party one's own refresh factor, combines it with party two's
// revealed rho2 via Rotate, and returns the two response messages sent back
// alongside the rotated master key the caller must persist.
func RotationSecond(witness *RotateCommitMessage1R, rho1 *RotateRandom1, mk *MasterKey1, party2 *Party2CoinFlip1stMsg) (*CoinFlipParty1SecondMsg, *RotationParty1Msg1, *MasterKey1, error) {
	rotated, err := Rotate(witness, rho1, party2.Rho2, mk)
	if err != nil {
		return nil, nil, nil, err
	}
	return &CoinFlipParty1SecondMsg{Rho1: rho1.Rho1}, &RotationParty1Msg1{PublicQ: rotated.PublicQ}, rotated, nil
}
