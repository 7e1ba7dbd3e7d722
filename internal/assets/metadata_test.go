package assets

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

type fakeToken struct {
	decimals uint8
	symbol   interface{} // string or [32]byte
	name     interface{}
	calls    int
}

func (f *fakeToken) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	f.calls++
	strABI, _, err := erc20ABIs()
	if err != nil {
		return nil, err
	}
	pack := func(method string, v interface{}) ([]byte, error) {
		parsed := strABI
		if _, ok := v.([32]byte); ok {
			_, parsed, _ = erc20ABIs()
		}
		return parsed.Methods[method].Outputs.Pack(v)
	}
	selector := msg.Data[:4]
	for name, m := range strABI.Methods {
		if !bytes.Equal(m.ID, selector) {
			continue
		}
		switch name {
		case "decimals":
			return pack(name, f.decimals)
		case "symbol":
			return pack(name, f.symbol)
		case "name":
			return pack(name, f.name)
		}
	}
	return nil, errors.New("execution reverted")
}

var token = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")

func TestResolveStringToken(t *testing.T) {
	fake := &fakeToken{decimals: 6, symbol: "USDC", name: "USD Coin"}
	r := NewResolver(fake, nil)

	meta, err := r.Resolve(context.Background(), token)
	require.NoError(t, err)
	require.Equal(t, uint8(6), meta.Decimals)
	require.Equal(t, "USDC", meta.Symbol)
	require.Equal(t, "USD Coin", meta.Name)
	require.Equal(t, token.Hex(), meta.Address)

	calls := fake.calls
	_, err = r.Resolve(context.Background(), token)
	require.NoError(t, err)
	require.Equal(t, calls, fake.calls, "second resolve should hit the cache")
}

func TestResolveBytes32Token(t *testing.T) {
	var sym, name [32]byte
	copy(sym[:], "MKR")
	copy(name[:], "Maker")
	r := NewResolver(&fakeToken{decimals: 18, symbol: sym, name: name}, nil)

	meta, err := r.Resolve(context.Background(), token)
	require.NoError(t, err)
	require.Equal(t, "MKR", meta.Symbol)
	require.Equal(t, "Maker", meta.Name)
}

type revertAll struct{}

func (revertAll) CallContract(context.Context, ethereum.CallMsg, *big.Int) ([]byte, error) {
	return nil, errors.New("execution reverted")
}

func TestResolveRequiresDecimals(t *testing.T) {
	_, err := NewResolver(revertAll{}, nil).Resolve(context.Background(), token)
	require.Error(t, err)
}
