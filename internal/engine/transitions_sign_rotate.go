package engine

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"math/big"

	"github.com/partyone/tss-signer/internal/engineerr"
	"github.com/partyone/tss-signer/internal/mpcparty1"
	"github.com/partyone/tss-signer/internal/store"
)

// ---- sign/<sid>/first -----------------------------------------------------

// SignFirst validates the token, draws a fresh ephemeral keypair, and
// always overwrites the session's previous ephemeral artifacts: each
// signature is a fresh ephemeral round.
func (e *Engine) SignFirst(ctx context.Context, user, sid, token string, party2Msg *mpcparty1.EphKeyGenFirstMsg) (*mpcparty1.EphKeyGenFirstMsg, *engineerr.Error) {
	if eerr := e.validateToken(ctx, token); eerr != nil {
		return nil, eerr
	}

	return withSessionResult(e, user, sid, func() (*mpcparty1.EphKeyGenFirstMsg, *engineerr.Error) {
		msg, eph, err := mpcparty1.SignFirst()
		if err != nil {
			return nil, engineerr.Wrap(engineerr.CryptoFailure, "sign_first failed", err)
		}

		if err := store.PutJSON(ctx, e.store, user, sid, store.KindEphKeyGenFirstMsg, party2Msg); err != nil {
			return nil, storeErr("writing EphKeyGenFirstMsg", err)
		}
		if err := store.PutJSON(ctx, e.store, user, sid, store.KindEphEcKeyPair, eph); err != nil {
			return nil, storeErr("writing EphEcKeyPair", err)
		}
		return msg, nil
	})
}

// SignSecondRequest is the body of POST /ecdsa/sign/<sid>/second.
type SignSecondRequest struct {
	Message         *big.Int                 `json:"message"`
	PartyTwoSignMsg *mpcparty1.Party2SignMsg `json:"party_two_sign_message"`
	XPosChildKey    *big.Int                 `json:"x_pos_child_key"`
	YPosChildKey    *big.Int                 `json:"y_pos_child_key"`
}

// SignSecond loads Party1MasterKey (recovering from the vault on a local
// cache miss), loads the ephemeral keypair SignFirst wrote, derives the
// child key at the requested HD path, combines the signature, and, when
// req.Message is set, verifies it against the child public key before
// returning it. A verification failure is a fatal CryptoFailure with no
// retry; the client should abandon the session.
func (e *Engine) SignSecond(ctx context.Context, user, sid, token string, req SignSecondRequest) (*mpcparty1.Signature, *engineerr.Error) {
	masterKey, eerr := e.loadOrRecoverMasterKey(ctx, user, sid, token)
	if eerr != nil {
		return nil, eerr
	}

	return withSessionResult(e, user, sid, func() (*mpcparty1.Signature, *engineerr.Error) {
		eph, err := store.GetJSON[*mpcparty1.EphEcKeyPair](ctx, e.store, user, sid, store.KindEphEcKeyPair)
		if err != nil {
			return nil, storeErr("EphEcKeyPair not found for "+sid, err)
		}

		child, cerr := masterKey.GetChild([]*big.Int{req.XPosChildKey, req.YPosChildKey})
		if cerr != nil {
			return nil, engineerr.Wrap(engineerr.CryptoFailure, "get_child failed", cerr)
		}

		childPriv := &mpcparty1.Party1Private{
			PaillierKeyPair: mpcparty1.PaillierKeyPair{
				PublicKey:  child.Paillier.PublicKey,
				PrivateKey: child.Paillier.PrivateKey,
			},
			EncryptedX1: child.EncryptedX1,
		}

		sig, serr := mpcparty1.SignSecond(childPriv, eph, req.PartyTwoSignMsg)
		if serr != nil {
			return nil, engineerr.Wrap(engineerr.CryptoFailure, "sign_second failed", serr)
		}

		if req.Message != nil {
			pubKey := ecdsa.PublicKey{Curve: mpcparty1.Curve(), X: child.PublicQ.X, Y: child.PublicQ.Y}
			if !ecdsa.Verify(&pubKey, req.Message.Bytes(), sig.R, sig.S) {
				return nil, engineerr.New(engineerr.CryptoFailure, "signature failed verification against child public key")
			}
		}
		return sig, nil
	})
}

// ---- rotate/<sid>/first ---------------------------------------------------

// RotateFirst validates the token, draws party one's refresh factor, and
// commits to it.
func (e *Engine) RotateFirst(ctx context.Context, user, sid, token string) (*mpcparty1.RotateCommitMessage1M, *engineerr.Error) {
	if eerr := e.validateToken(ctx, token); eerr != nil {
		return nil, eerr
	}

	return withSessionResult(e, user, sid, func() (*mpcparty1.RotateCommitMessage1M, *engineerr.Error) {
		msg, witness, rho1, err := mpcparty1.RotationFirst()
		if err != nil {
			return nil, engineerr.Wrap(engineerr.CryptoFailure, "rotation_first failed", err)
		}
		if err := store.PutJSON(ctx, e.store, user, sid, store.KindRotateCommitMessage1M, msg); err != nil {
			return nil, storeErr("writing RotateCommitMessage1M", err)
		}
		if err := store.PutJSON(ctx, e.store, user, sid, store.KindRotateCommitMessage1R, witness); err != nil {
			return nil, storeErr("writing RotateCommitMessage1R", err)
		}
		if err := store.PutJSON(ctx, e.store, user, sid, store.KindRotateRandom1, rho1); err != nil {
			return nil, storeErr("writing RotateRandom1", err)
		}
		return msg, nil
	})
}

// rotateSecondResult bundles RotateSecond's two response bodies so the pair
// can travel through withSessionResult's single type parameter.
type rotateSecondResult struct {
	CoinFlip *mpcparty1.CoinFlipParty1SecondMsg
	Rotation *mpcparty1.RotationParty1Msg1
}

// RotateSecond loads Party1MasterKey (recovering from the vault on a local
// cache miss) and the rotation commitment state, combines party one's and
// party two's refresh factors, overwrites Party1MasterKey with the rotated
// key, and mirrors it to the vault, local write first, remote mirror
// second.
func (e *Engine) RotateSecond(ctx context.Context, user, sid, token string, party2 *mpcparty1.Party2CoinFlip1stMsg) (*mpcparty1.CoinFlipParty1SecondMsg, *mpcparty1.RotationParty1Msg1, *engineerr.Error) {
	masterKey, eerr := e.loadOrRecoverMasterKey(ctx, user, sid, token)
	if eerr != nil {
		return nil, nil, eerr
	}

	res, eerr := withSessionResult(e, user, sid, func() (rotateSecondResult, *engineerr.Error) {
		witness, err := store.GetJSON[*mpcparty1.RotateCommitMessage1R](ctx, e.store, user, sid, store.KindRotateCommitMessage1R)
		if err != nil {
			return rotateSecondResult{}, storeErr("RotateCommitMessage1R not found for "+sid, err)
		}
		rho1, err := store.GetJSON[*mpcparty1.RotateRandom1](ctx, e.store, user, sid, store.KindRotateRandom1)
		if err != nil {
			return rotateSecondResult{}, storeErr("RotateRandom1 not found for "+sid, err)
		}
		if _, err := store.GetJSON[*mpcparty1.RotateCommitMessage1M](ctx, e.store, user, sid, store.KindRotateCommitMessage1M); err != nil {
			return rotateSecondResult{}, storeErr("RotateCommitMessage1M not found for "+sid, err)
		}

		coinFlip2nd, rotationMsg, rotated, cerr := mpcparty1.RotationSecond(witness, rho1, masterKey, party2)
		if cerr != nil {
			return rotateSecondResult{}, engineerr.Wrap(engineerr.CryptoFailure, "rotation_second failed", cerr)
		}

		if err := store.PutJSON(ctx, e.store, user, sid, store.KindParty1MasterKey, rotated); err != nil {
			return rotateSecondResult{}, storeErr("overwriting Party1MasterKey", err)
		}
		if err := e.vault.StoreMasterKey(ctx, token, mustMarshal(rotated)); err != nil {
			return rotateSecondResult{}, e.upstreamErr("store_master_key", err)
		}

		return rotateSecondResult{CoinFlip: coinFlip2nd, Rotation: rotationMsg}, nil
	})
	if eerr != nil {
		return nil, nil, eerr
	}
	return res.CoinFlip, res.Rotation, nil
}

// ---- <sid>/recover --------------------------------------------------------

// Recover validates the token and returns the session's HD position, used
// by clients to recover after local state loss.
func (e *Engine) Recover(ctx context.Context, user, sid, token string) (uint32, *engineerr.Error) {
	if eerr := e.validateToken(ctx, token); eerr != nil {
		return 0, eerr
	}
	return withSessionResult(e, user, sid, func() (uint32, *engineerr.Error) {
		pos, err := store.GetJSON[posArtifact](ctx, e.store, user, sid, store.KindPOS)
		if err != nil {
			return 0, storeErr("POS not found for "+sid, err)
		}
		return pos.Pos, nil
	})
}

// ---- shared master-key cache-miss -> vault-fetch -> cache-fill primitive --

// loadOrRecoverMasterKey is the cache-miss -> vault-fetch -> cache-fill
// primitive SignSecond and RotateSecond share: the local store is
// authoritative; the vault is a fallback only when the local lookup returns
// "absent".
func (e *Engine) loadOrRecoverMasterKey(ctx context.Context, user, sid, token string) (*mpcparty1.MasterKey1, *engineerr.Error) {
	masterKey, err := store.GetJSON[*mpcparty1.MasterKey1](ctx, e.store, user, sid, store.KindParty1MasterKey)
	if err == nil {
		return masterKey, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, storeErr("reading Party1MasterKey for "+sid, err)
	}

	raw, ferr := e.vault.FetchMasterKey(ctx, token)
	if ferr != nil {
		return nil, e.upstreamErr("fetch_master_key", ferr)
	}
	var recovered mpcparty1.MasterKey1
	if uerr := json.Unmarshal(raw, &recovered); uerr != nil {
		return nil, engineerr.Wrap(engineerr.UpstreamFailure, "fetch_master_key: malformed vault payload", uerr)
	}
	if err := store.PutJSON(ctx, e.store, user, sid, store.KindParty1MasterKey, &recovered); err != nil {
		return nil, storeErr("writing back recovered Party1MasterKey", err)
	}
	return &recovered, nil
}
