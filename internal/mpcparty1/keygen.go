package mpcparty1

import (
	"context"
	"errors"
	"math/big"

	"github.com/bnb-chain/tss-lib/common"
	"github.com/bnb-chain/tss-lib/crypto/paillier"
)

// paillierModulusBits matches tss-lib's own GG18 default.
const paillierModulusBits = 2048

// EcKeyPair is party one's local secret share and its public point,
// persisted as the EcKeyPair artifact.
type EcKeyPair struct {
	SecretShare *big.Int `json:"secret_share"`
	PublicShare *ECPoint `json:"public_share"`
}

// KeyGenFirstMsg is returned to the caller of keygen/first: the commitment
// to party one's public share and DLog proof. The decommitment itself is
// never sent to the caller; it is retained server-side as the CommWitness
// artifact until the second round.
type KeyGenFirstMsg struct {
	PKCommitment    *big.Int `json:"pk_commitment"`
	ZKPokCommitment *big.Int `json:"zk_pok_commitment"`
}

// CommWitness holds party one's randomness linking KeyGenFirstMsg to the
// eventual decommit in the second round, never serialized to the HTTP
// caller, only ever round-tripped through the store.
type CommWitness struct {
	PKCommitment    *Commitment `json:"pk_commitment"`
	ZKPokCommitment *Commitment `json:"zk_pok_commitment"`
	PublicShare     *ECPoint    `json:"public_share"`
	DLogProof       *DLogProof  `json:"d_log_proof"`
}

// KeyGenFirst starts keygen: draw x1, commit to Q1=x1*G and to a DLog proof
// of knowledge of x1, and return the pair of commitments plus the private
// material the caller must stash until the second round.
func KeyGenFirst() (*KeyGenFirstMsg, *CommWitness, *EcKeyPair, error) {
	q := Q()
	x1 := common.GetRandomPositiveInt(q)
	Q1 := BasePointMult(x1)
	proof := Prove(x1, Q1)

	pkCommit := Commit(Q1.X, Q1.Y)
	zkCommit := Commit(proof.Alpha.X, proof.Alpha.Y, proof.T)

	msg := &KeyGenFirstMsg{
		PKCommitment:    pkCommit.C,
		ZKPokCommitment: zkCommit.C,
	}
	witness := &CommWitness{
		PKCommitment:    pkCommit,
		ZKPokCommitment: zkCommit,
		PublicShare:     Q1,
		DLogProof:       proof,
	}
	kp := &EcKeyPair{SecretShare: x1, PublicShare: Q1}
	return msg, witness, kp, nil
}

// Party2KeyGenMsg is what party two sends in the second keygen round: its
// own public share and a proof of knowledge of its secret share, sent in
// the clear since party two decommits in the same round party one
// decommits.
type Party2KeyGenMsg struct {
	PublicShare *ECPoint   `json:"public_share"`
	DLogProof   *DLogProof `json:"d_log_proof"`
}

// Party1Private is everything party one needs to sign and derive children,
// persisted as the Party1Private artifact. JointPublicKey is carried here
// (rather than as its own artifact kind) so that master-key finalization
// can assemble Party1MasterKey without recomputing it from party two's
// share, which this component never independently holds.
type Party1Private struct {
	EcKeyPair       EcKeyPair       `json:"ec_key_pair"`
	PaillierKeyPair PaillierKeyPair `json:"paillier_key_pair"`
	EncryptedX1     *big.Int        `json:"encrypted_x1"`
	EncryptionRand  *big.Int        `json:"encryption_randomness"`
	JointPublicKey  *ECPoint        `json:"joint_public_key"`
}

// ErrInvalidProof is returned whenever a counterparty-supplied DLog proof
// fails verification.
var ErrInvalidProof = errors.New("mpcparty1: discrete log proof verification failed")

// KeyGenSecond finishes keygen: verify party two's proof, mint a fresh
// Paillier keypair, and encrypt x1 under it. The witness is not read here;
// party one's decommitment is assembled from it by BuildParty1Msg2. The
// sharing is multiplicative (x = x1*x2), so the joint public key is
// Q = x1*Q2.
func KeyGenSecond(ctx context.Context, witness *CommWitness, kp *EcKeyPair, party2 *Party2KeyGenMsg) (*ECPoint, *Party1Private, error) {
	if !party2.DLogProof.Verify(party2.PublicShare) {
		return nil, nil, ErrInvalidProof
	}

	paillierPriv, paillierPub, err := paillier.GenerateKeyPair(ctx, paillierModulusBits)
	if err != nil {
		return nil, nil, err
	}
	c, r, err := paillierPub.EncryptAndReturnRandomness(kp.SecretShare)
	if err != nil {
		return nil, nil, err
	}

	jointPub := party2.PublicShare.Mult(kp.SecretShare)

	priv := &Party1Private{
		EcKeyPair:       *kp,
		PaillierKeyPair: PaillierKeyPair{PublicKey: paillierPub, PrivateKey: paillierPriv},
		EncryptedX1:     c,
		EncryptionRand:  r,
		JointPublicKey:  jointPub,
	}
	return jointPub, priv, nil
}

// KeyGenParty1Msg2 is the second keygen round's response: party one's
// decommitment of its public share and DLog proof, plus the freshly minted
// Paillier public key party two needs for the homomorphic signing protocol.
type KeyGenParty1Msg2 struct {
	PublicShare       *ECPoint            `json:"public_share"`
	DLogProof         *DLogProof          `json:"d_log_proof"`
	PaillierPublicKey *paillier.PublicKey `json:"paillier_public_key"`
}

// BuildParty1Msg2 assembles the wire response from the witness retained
// since the first round and the private material KeyGenSecond just
// produced.
func BuildParty1Msg2(witness *CommWitness, priv *Party1Private) *KeyGenParty1Msg2 {
	return &KeyGenParty1Msg2{
		PublicShare:       witness.PublicShare,
		DLogProof:         witness.DLogProof,
		PaillierPublicKey: priv.PaillierKeyPair.PublicKey,
	}
}
