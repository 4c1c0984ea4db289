package ethrelay

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// jsonRPCRequest/Response mirror the minimal envelope every Ethereum
// JSON-RPC method uses; the fake server below answers the handful of calls
// Params and Send make against ethclient.
type jsonRPCRequest struct {
	ID     json.RawMessage `json:"id"`
	Method string          `json:"method"`
}

func fakeRPCServer(t *testing.T, answers map[string]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req jsonRPCRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		result, ok := answers[req.Method]
		require.True(t, ok, "unexpected RPC method %s", req.Method)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"jsonrpc":"2.0","id":` + string(req.ID) + `,"result":` + result + `}`))
	}))
}

func TestParamsResolvesMissingFieldsAndAppliesEip1559Default(t *testing.T) {
	srv := fakeRPCServer(t, map[string]string{
		"eth_getTransactionCount": `"0x5"`,
		"eth_gasPrice":            `"0x3b9aca00"`, // 1 gwei
		"eth_chainId":             `"0x1"`,
	})
	defer srv.Close()

	r := New(srv.URL)
	resp, err := r.Params(context.Background(), ParamsRequest{
		FromAddress: "0x0000000000000000000000000000000000000001",
		ToAddress:   "0x0000000000000000000000000000000000000002",
		EthValue:    1.0,
		Type:        DynamicFeeTxType,
	})
	require.NoError(t, err)
	assert.EqualValues(t, 5, resp.Nonce)
	assert.Equal(t, big.NewInt(1), resp.ChainID)
	assert.Equal(t, "1000000000000000000", resp.Value.String())
	// no MaxFeePerGas set by the caller -> priority fee defaults to gas price.
	assert.Equal(t, resp.GasPrice, resp.MaxPriorityFeePerGas)
}

func TestParamsHonorsExplicitMaxFeePerGas(t *testing.T) {
	srv := fakeRPCServer(t, map[string]string{
		"eth_getTransactionCount": `"0x0"`,
		"eth_gasPrice":            `"0x3b9aca00"`,
		"eth_chainId":             `"0x1"`,
	})
	defer srv.Close()

	r := New(srv.URL)
	maxFee := big.NewInt(5_000_000_000)
	resp, err := r.Params(context.Background(), ParamsRequest{
		FromAddress:  "0x0000000000000000000000000000000000000001",
		ToAddress:    "0x0000000000000000000000000000000000000002",
		Type:         DynamicFeeTxType,
		MaxFeePerGas: maxFee,
	})
	require.NoError(t, err)
	assert.Equal(t, maxFee, resp.MaxPriorityFeePerGas)
}

func TestParamsSkipsResolutionForCallerSuppliedFields(t *testing.T) {
	srv := fakeRPCServer(t, map[string]string{
		"eth_chainId": `"0x1"`,
	})
	defer srv.Close()

	nonce := uint64(42)
	r := New(srv.URL)
	resp, err := r.Params(context.Background(), ParamsRequest{
		FromAddress: "0x0000000000000000000000000000000000000001",
		ToAddress:   "0x0000000000000000000000000000000000000002",
		Nonce:       &nonce,
		GasPrice:    big.NewInt(7),
	})
	require.NoError(t, err)
	assert.EqualValues(t, 42, resp.Nonce)
	assert.Equal(t, big.NewInt(7), resp.GasPrice)
}

func TestSendForwardsRawTransactionAndReturnsHash(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	signer := types.NewEIP155Signer(big.NewInt(1))
	unsigned := types.NewTransaction(0, common.Address{1}, big.NewInt(1), 21000, big.NewInt(1), nil)
	signedTx, err := types.SignTx(unsigned, signer, key)
	require.NoError(t, err)

	raw, err := signedTx.MarshalBinary()
	require.NoError(t, err)

	srv := fakeRPCServer(t, map[string]string{
		"eth_sendRawTransaction": `"` + signedTx.Hash().Hex() + `"`,
	})
	defer srv.Close()

	r := New(srv.URL)
	resp, err := r.Send(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, signedTx.Hash().Hex(), resp.TxHash)
}

func TestEthToWeiWholeEther(t *testing.T) {
	got := EthToWei(1.0)
	assert.Equal(t, "1000000000000000000", got.String())
}

func TestEthToWeiFractional(t *testing.T) {
	got := EthToWei(0.000000000000000001)
	assert.Equal(t, "1", got.String())
}

func TestEthToWeiZero(t *testing.T) {
	got := EthToWei(0)
	assert.Equal(t, big.NewInt(0), got)
}

func TestEthToWeiTruncatesRatherThanRounds(t *testing.T) {
	// floor, not round: fractional wei below the integer boundary is
	// dropped.
	got := EthToWei(0.0000000000000000015)
	assert.Equal(t, "1", got.String())
}
