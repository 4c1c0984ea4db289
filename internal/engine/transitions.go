package engine

import (
	"context"
	"encoding/json"

	"github.com/partyone/tss-signer/internal/engineerr"
	"github.com/partyone/tss-signer/internal/mpcparty1"
	"github.com/partyone/tss-signer/internal/store"
)

// posArtifact is the store carrier for the KindPOS artifact: the HD
// derivation position, written exactly once per session at keygen start and
// read-only afterward.
type posArtifact struct {
	Pos uint32 `json:"pos"`
}

// ---- keygen/first -------------------------------------------------------

// KeygenFirst validates the token, mints a fresh session id, and writes the
// session's initial artifacts (POS, KeyGenFirstMsg, CommWitness,
// EcKeyPair).
func (e *Engine) KeygenFirst(ctx context.Context, user, token string) (string, *mpcparty1.KeyGenFirstMsg, *engineerr.Error) {
	if eerr := e.validateToken(ctx, token); eerr != nil {
		return "", nil, eerr
	}

	msg, witness, kp, err := mpcparty1.KeyGenFirst()
	if err != nil {
		return "", nil, engineerr.Wrap(engineerr.CryptoFailure, "keygen_first failed", err)
	}

	sid := NewSessionID()
	_, eerr := withSessionResult(e, user, sid, func() (struct{}, *engineerr.Error) {
		return struct{}{}, e.writeKeygenFirstArtifacts(ctx, user, sid, msg, witness, kp)
	})
	if eerr != nil {
		return "", nil, eerr
	}
	return sid, msg, nil
}

func (e *Engine) writeKeygenFirstArtifacts(ctx context.Context, user, sid string, msg *mpcparty1.KeyGenFirstMsg, witness *mpcparty1.CommWitness, kp *mpcparty1.EcKeyPair) *engineerr.Error {
	if err := store.PutJSON(ctx, e.store, user, sid, store.KindPOS, posArtifact{Pos: 0}); err != nil {
		return storeErr("writing POS", err)
	}
	if err := store.PutJSON(ctx, e.store, user, sid, store.KindKeyGenFirstMsg, msg); err != nil {
		return storeErr("writing KeyGenFirstMsg", err)
	}
	if err := store.PutJSON(ctx, e.store, user, sid, store.KindCommWitness, witness); err != nil {
		return storeErr("writing CommWitness", err)
	}
	if err := store.PutJSON(ctx, e.store, user, sid, store.KindEcKeyPair, kp); err != nil {
		return storeErr("writing EcKeyPair", err)
	}
	return nil
}

// ---- keygen/<sid>/second ------------------------------------------------

// KeygenSecond loads CommWitness and EcKeyPair, verifies party two's proof,
// mints the Paillier keypair, and persists Party2Public, PaillierKeyPair,
// and Party1Private. There is no atomicity guarantee across these writes; a
// failure mid-way leaves a partial session the client must abandon.
func (e *Engine) KeygenSecond(ctx context.Context, user, sid string, party2 *mpcparty1.Party2KeyGenMsg) (*mpcparty1.KeyGenParty1Msg2, *engineerr.Error) {
	return withSessionResult(e, user, sid, func() (*mpcparty1.KeyGenParty1Msg2, *engineerr.Error) {
		witness, err := store.GetJSON[*mpcparty1.CommWitness](ctx, e.store, user, sid, store.KindCommWitness)
		if err != nil {
			return nil, storeErr("CommWitness not found for "+sid, err)
		}
		kp, err := store.GetJSON[*mpcparty1.EcKeyPair](ctx, e.store, user, sid, store.KindEcKeyPair)
		if err != nil {
			return nil, storeErr("EcKeyPair not found for "+sid, err)
		}

		if err := store.PutJSON(ctx, e.store, user, sid, store.KindParty2Public, party2); err != nil {
			return nil, storeErr("writing Party2Public", err)
		}

		_, priv, cerr := mpcparty1.KeyGenSecond(ctx, witness, kp, party2)
		if cerr != nil {
			return nil, engineerr.Wrap(engineerr.CryptoFailure, "keygen_second failed", cerr)
		}

		if err := store.PutJSON(ctx, e.store, user, sid, store.KindPaillierKeyPair, priv.PaillierKeyPair); err != nil {
			return nil, storeErr("writing PaillierKeyPair", err)
		}
		if err := store.PutJSON(ctx, e.store, user, sid, store.KindParty1Private, priv); err != nil {
			return nil, storeErr("writing Party1Private", err)
		}

		// The joint public key computed by KeyGenSecond is carried inside
		// priv.JointPublicKey for ChainCodeSecond to consume; it is not
		// itself a named artifact kind.
		return mpcparty1.BuildParty1Msg2(witness, priv), nil
	})
}

// ---- keygen/<sid>/chaincode/first ---------------------------------------

// ChainCodeFirst draws party one's chain-code scalar and commits to it.
func (e *Engine) ChainCodeFirst(ctx context.Context, user, sid string) (*mpcparty1.CCKeyGenFirstMsg, *engineerr.Error) {
	return withSessionResult(e, user, sid, func() (*mpcparty1.CCKeyGenFirstMsg, *engineerr.Error) {
		msg, witness, kp, err := mpcparty1.ChainCodeFirst()
		if err != nil {
			return nil, engineerr.Wrap(engineerr.CryptoFailure, "chaincode_first failed", err)
		}
		if err := store.PutJSON(ctx, e.store, user, sid, store.KindCCKeyGenFirstMsg, msg); err != nil {
			return nil, storeErr("writing CCKeyGenFirstMsg", err)
		}
		if err := store.PutJSON(ctx, e.store, user, sid, store.KindCCCommWitness, witness); err != nil {
			return nil, storeErr("writing CCCommWitness", err)
		}
		if err := store.PutJSON(ctx, e.store, user, sid, store.KindCCEcKeyPair, kp); err != nil {
			return nil, storeErr("writing CCEcKeyPair", err)
		}
		return msg, nil
	})
}

// ---- keygen/<sid>/chaincode/second ---------------------------------------

// ChainCodeSecond checks that every keygen artifact the finalization needs
// is present, computes and persists the chain code, assembles and persists
// Party1MasterKey, and mirrors it to the vault, local write first, remote
// mirror second. A vault failure here is surfaced as an error; the local
// master key remains persisted for a later retry.
func (e *Engine) ChainCodeSecond(ctx context.Context, user, sid, token string, party2 *mpcparty1.Party2ChainCodeMsg) (*mpcparty1.CCParty1SecondMsg, *engineerr.Error) {
	return withSessionResult(e, user, sid, func() (*mpcparty1.CCParty1SecondMsg, *engineerr.Error) {
		ccWitness, err := store.GetJSON[*mpcparty1.CCCommWitness](ctx, e.store, user, sid, store.KindCCCommWitness)
		if err != nil {
			return nil, storeErr("CCCommWitness not found for "+sid, err)
		}
		if _, err := store.GetJSON[*mpcparty1.CCEcKeyPair](ctx, e.store, user, sid, store.KindCCEcKeyPair); err != nil {
			return nil, storeErr("CCEcKeyPair not found for "+sid, err)
		}
		if _, err := store.GetJSON[json.RawMessage](ctx, e.store, user, sid, store.KindParty2Public); err != nil {
			return nil, storeErr("Party2Public not found for "+sid, err)
		}
		priv, err := store.GetJSON[*mpcparty1.Party1Private](ctx, e.store, user, sid, store.KindParty1Private)
		if err != nil {
			return nil, storeErr("Party1Private not found for "+sid, err)
		}
		if _, err := store.GetJSON[*mpcparty1.PaillierKeyPair](ctx, e.store, user, sid, store.KindPaillierKeyPair); err != nil {
			return nil, storeErr("PaillierKeyPair not found for "+sid, err)
		}
		if _, err := store.GetJSON[*mpcparty1.CommWitness](ctx, e.store, user, sid, store.KindCommWitness); err != nil {
			return nil, storeErr("CommWitness not found for "+sid, err)
		}

		chainCode, cerr := mpcparty1.ComputeChainCode(ccWitness, party2)
		if cerr != nil {
			return nil, engineerr.Wrap(engineerr.CryptoFailure, "chaincode_second failed", cerr)
		}
		if err := store.PutJSON(ctx, e.store, user, sid, store.KindCC, chainCode); err != nil {
			return nil, storeErr("writing CC", err)
		}

		masterKey := mpcparty1.SetMasterKey(priv.JointPublicKey, priv, chainCode)
		if err := store.PutJSON(ctx, e.store, user, sid, store.KindParty1MasterKey, masterKey); err != nil {
			return nil, storeErr("writing Party1MasterKey", err)
		}

		if err := e.vault.StoreMasterKey(ctx, token, mustMarshal(masterKey)); err != nil {
			return nil, e.upstreamErr("store_master_key", err)
		}

		return mpcparty1.BuildCCParty1SecondMsg(ccWitness), nil
	})
}
