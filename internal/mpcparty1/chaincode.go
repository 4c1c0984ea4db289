package mpcparty1

import (
	"crypto/sha256"
	"errors"
	"math/big"

	"github.com/bnb-chain/tss-lib/common"
)

// CCKeyGenFirstMsg is the chain-code first round's response: a commitment
// to party one's chain-code contribution point CC1=cc1*G. Shaped exactly
// like KeyGenFirstMsg since the chain-code sub-protocol is the same
// commit/reveal/DLog-proof shape as keygen, just run a second time over a
// throwaway scalar.
type CCKeyGenFirstMsg struct {
	PKCommitment    *big.Int `json:"pk_commitment"`
	ZKPokCommitment *big.Int `json:"zk_pok_commitment"`
}

// CCCommWitness is the decommitment retained until the chain-code second
// round.
type CCCommWitness struct {
	PKCommitment    *Commitment `json:"pk_commitment"`
	ZKPokCommitment *Commitment `json:"zk_pok_commitment"`
	PublicShare     *ECPoint    `json:"public_share"`
	DLogProof       *DLogProof  `json:"d_log_proof"`
}

// CCEcKeyPair is party one's chain-code scalar and point.
type CCEcKeyPair struct {
	SecretShare *big.Int `json:"secret_share"`
	PublicShare *ECPoint `json:"public_share"`
}

// ChainCodeFirst draws party one's chain-code scalar cc1 and commits to
// CC1=cc1*G and to a DLog proof of knowledge of cc1, the same shape
// KeyGenFirst uses for the long-term key share.
func ChainCodeFirst() (*CCKeyGenFirstMsg, *CCCommWitness, *CCEcKeyPair, error) {
	q := Q()
	cc1 := common.GetRandomPositiveInt(q)
	CC1 := BasePointMult(cc1)
	proof := Prove(cc1, CC1)

	pkCommit := Commit(CC1.X, CC1.Y)
	zkCommit := Commit(proof.Alpha.X, proof.Alpha.Y, proof.T)

	msg := &CCKeyGenFirstMsg{PKCommitment: pkCommit.C, ZKPokCommitment: zkCommit.C}
	witness := &CCCommWitness{
		PKCommitment:    pkCommit,
		ZKPokCommitment: zkCommit,
		PublicShare:     CC1,
		DLogProof:       proof,
	}
	return msg, witness, &CCEcKeyPair{SecretShare: cc1, PublicShare: CC1}, nil
}

// ErrBadCommitment is returned when a counterparty's decommitment does not
// match the commitment it sent in the first round of any commit-reveal
// exchange (chain code, rotation).
var ErrBadCommitment = errors.New("mpcparty1: commitment verification failed")

// Party2ChainCodeMsg is party two's chain-code second-round payload: its
// own chain-code point and a DLog proof of knowledge of the underlying
// scalar.
type Party2ChainCodeMsg struct {
	PublicShare *ECPoint   `json:"public_share"`
	DLogProof   *DLogProof `json:"d_log_proof"`
}

// CCParty1SecondMsg is the chain-code second round's response: party one's
// decommitment of its chain-code contribution.
type CCParty1SecondMsg struct {
	PublicShare *ECPoint   `json:"public_share"`
	DLogProof   *DLogProof `json:"d_log_proof"`
}

// BuildCCParty1SecondMsg assembles the wire response from the witness
// retained since ChainCodeFirst.
func BuildCCParty1SecondMsg(witness *CCCommWitness) *CCParty1SecondMsg {
	return &CCParty1SecondMsg{PublicShare: witness.PublicShare, DLogProof: witness.DLogProof}
}

// ComputeChainCode verifies party two's proof, combines the two chain-code
// points by addition (CC = CC1+CC2), and hashes the combined
// point's compressed encoding down to the 32-byte chain code BIP32-style
// derivation expects.
func ComputeChainCode(witness *CCCommWitness, party2 *Party2ChainCodeMsg) ([]byte, error) {
	if !party2.DLogProof.Verify(party2.PublicShare) {
		return nil, ErrInvalidProof
	}
	combined := witness.PublicShare.Add(party2.PublicShare)
	sum := sha256.Sum256(combined.SECCompressed())
	return sum[:], nil
}
