// Package ethrelay is the Ethereum relay: it resolves EIP-1559-aware
// transaction parameters and forwards signed raw transactions to a
// configured Ethereum JSON-RPC endpoint. Nonce, gas price, and chain id are
// resolved concurrently via errgroup.
package ethrelay

import (
	"context"
	"fmt"
	"math"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"golang.org/x/sync/errgroup"
)

// LegacyTxType and DynamicFeeTxType mirror go-ethereum's own
// types.LegacyTxType / types.DynamicFeeTxType constants, restated here so
// callers building a ParamsRequest don't need to import core/types just to
// set the Type field.
const (
	LegacyTxType     = 0
	DynamicFeeTxType = 2
)

// ParamsRequest is the body of POST /eth/tx/params. Fields left nil/zero are
// resolved from the chain; fields already set by the caller are passed
// through unchanged.
type ParamsRequest struct {
	FromAddress string   `json:"from_address"`
	ToAddress   string   `json:"to_address"`
	EthValue    float64  `json:"eth_value"`
	Type        int      `json:"type"`
	Nonce       *uint64  `json:"nonce,omitempty"`
	GasPrice    *big.Int `json:"gas_price,omitempty"`

	MaxFeePerGas         *big.Int `json:"max_fee_per_gas,omitempty"`
	MaxPriorityFeePerGas *big.Int `json:"max_priority_fee_per_gas,omitempty"`
}

// ParamsResponse is the resolved, EIP-1559-aware parameter bundle returned
// from POST /eth/tx/params.
type ParamsResponse struct {
	From    string   `json:"from_address"`
	To      string   `json:"to_address"`
	Value   *big.Int `json:"value"`
	Nonce   uint64   `json:"nonce"`
	ChainID *big.Int `json:"chain_id"`
	Type    int      `json:"type"`

	GasPrice *big.Int `json:"gas_price,omitempty"`

	MaxFeePerGas         *big.Int `json:"max_fee_per_gas,omitempty"`
	MaxPriorityFeePerGas *big.Int `json:"max_priority_fee_per_gas,omitempty"`
}

// SendResponse is the body of POST /eth/tx/send.
type SendResponse struct {
	TxHash string `json:"tx_hash"`
}

// Relay dials a fresh JSON-RPC connection per call, so it only needs the
// endpoint URL, not a live connection.
type Relay struct {
	endpoint string
}

func New(endpoint string) *Relay {
	return &Relay{endpoint: endpoint}
}

// dial opens a fresh client against the configured endpoint. go-ethereum's
// ethclient dials ws:// and wss:// the same way it dials http(s)://, so a
// websocket JSON-RPC endpoint needs no special casing.
func (r *Relay) dial(ctx context.Context) (*ethclient.Client, error) {
	client, err := ethclient.DialContext(ctx, r.endpoint)
	if err != nil {
		return nil, fmt.Errorf("ethrelay: dial %s: %w", r.endpoint, err)
	}
	return client, nil
}

// Params resolves any transaction parameters req leaves unset: nonce via
// eth_getTransactionCount(from, "latest"), gas price via eth_gasPrice, and
// chain id via eth_chainId, fetched concurrently. If req.Type is the
// EIP-1559 dynamic-fee type, MaxPriorityFeePerGas defaults to
// MaxFeePerGas when the caller set it, else to the resolved gas price.
func (r *Relay) Params(ctx context.Context, req ParamsRequest) (*ParamsResponse, error) {
	client, err := r.dial(ctx)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	from := common.HexToAddress(req.FromAddress)

	var (
		nonce    uint64
		gasPrice *big.Int
		chainID  *big.Int
	)

	g, gctx := errgroup.WithContext(ctx)
	if req.Nonce != nil {
		nonce = *req.Nonce
	} else {
		g.Go(func() error {
			n, err := client.NonceAt(gctx, from, nil)
			if err != nil {
				return fmt.Errorf("ethrelay: transaction_count: %w", err)
			}
			nonce = n
			return nil
		})
	}
	if req.GasPrice != nil {
		gasPrice = req.GasPrice
	} else {
		g.Go(func() error {
			gp, err := client.SuggestGasPrice(gctx)
			if err != nil {
				return fmt.Errorf("ethrelay: gas_price: %w", err)
			}
			gasPrice = gp
			return nil
		})
	}
	g.Go(func() error {
		id, err := client.ChainID(gctx)
		if err != nil {
			return fmt.Errorf("ethrelay: chain_id: %w", err)
		}
		chainID = id
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	resp := &ParamsResponse{
		From:     req.FromAddress,
		To:       req.ToAddress,
		Value:    EthToWei(req.EthValue),
		Nonce:    nonce,
		ChainID:  chainID,
		Type:     req.Type,
		GasPrice: gasPrice,
	}

	if req.Type == DynamicFeeTxType {
		resp.MaxFeePerGas = req.MaxFeePerGas
		switch {
		case req.MaxPriorityFeePerGas != nil:
			resp.MaxPriorityFeePerGas = req.MaxPriorityFeePerGas
		case req.MaxFeePerGas != nil:
			resp.MaxPriorityFeePerGas = req.MaxFeePerGas
		default:
			resp.MaxPriorityFeePerGas = gasPrice
		}
	}

	return resp, nil
}

// Send decodes a raw signed transaction and forwards it via
// eth_sendRawTransaction, returning its hash.
func (r *Relay) Send(ctx context.Context, rawTx []byte) (*SendResponse, error) {
	client, err := r.dial(ctx)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(rawTx); err != nil {
		return nil, fmt.Errorf("ethrelay: decode raw transaction: %w", err)
	}

	if err := client.SendTransaction(ctx, tx); err != nil {
		return nil, fmt.Errorf("ethrelay: send transaction: %w", err)
	}

	return &SendResponse{TxHash: tx.Hash().Hex()}, nil
}

// weiPerEth is 10^18, the ETH-to-wei conversion factor.
var weiPerEth = new(big.Float).SetFloat64(1e18)

// maxUint128 is 2^128 - 1, the largest wei amount EthToWei returns.
var maxUint128 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))

// EthToWei converts an ETH amount to wei, truncating (not rounding) to an
// integer: floor(eth * 10^18), computed exactly. The result is clamped to
// the uint128 range: negative amounts give 0 and amounts past 2^128-1 give
// 2^128-1. NaN and infinities give 0.
func EthToWei(eth float64) *big.Int {
	if math.IsNaN(eth) || math.IsInf(eth, 0) || eth <= 0 {
		return big.NewInt(0)
	}
	f := new(big.Float).SetPrec(256).SetFloat64(eth)
	f.Mul(f, weiPerEth)
	wei, _ := f.Int(nil)
	if wei.Cmp(maxUint128) > 0 {
		return new(big.Int).Set(maxUint128)
	}
	return wei
}
