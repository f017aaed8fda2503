package chain

import (
	"agentboxBackend/config"
	"context"
	"crypto/ecdsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Minimal ABI fragments for the two contracts this service talks to: the
// stable token (ERC-20) and the identity token (ERC-721 Enumerable with a
// URI-carrying mint function).
const erc20Abi = `[
	{"name":"transfer","type":"function","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"type":"bool"}]}
]`

const identityAbi = `[
	{"name":"mintTo","type":"function","inputs":[{"name":"to","type":"address"},{"name":"uri","type":"string"}],"outputs":[{"type":"uint256"}]},
	{"name":"safeTransferFrom","type":"function","inputs":[{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"tokenId","type":"uint256"}],"outputs":[]},
	{"name":"tokenURI","type":"function","stateMutability":"view","inputs":[{"name":"tokenId","type":"uint256"}],"outputs":[{"type":"string"}]},
	{"name":"balanceOf","type":"function","stateMutability":"view","inputs":[{"name":"owner","type":"address"}],"outputs":[{"type":"uint256"}]},
	{"name":"tokenOfOwnerByIndex","type":"function","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"index","type":"uint256"}],"outputs":[{"type":"uint256"}]}
]`

const descriptorUriPrefix = "data:application/json;base64,"

type rpcService struct {
	client        *ethclient.Client
	chainId       *big.Int
	treasuryKey   *ecdsa.PrivateKey
	custodialKey  *ecdsa.PrivateKey
	custodial     common.Address
	stableToken   common.Address
	identityToken common.Address
	erc20         abi.ABI
	identity      abi.ABI
}

// CreateRpcService connects to the configured JSON-RPC endpoint. The treasury
// and custodial signing keys come from AB_TREASURY_KEY and AB_CUSTODIAL_KEY.
func CreateRpcService(agentboxConfig *config.AgentboxConfig) (Service, error) {
	client, err := ethclient.Dial(agentboxConfig.Chain.RpcUrl)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RPC endpoint: %w", err)
	}

	chainId, err := client.ChainID(context.Background())
	if err != nil {
		return nil, fmt.Errorf("failed to determine chain id: %w", err)
	}

	treasuryKey, err := crypto.HexToECDSA(os.Getenv("AB_TREASURY_KEY"))
	if err != nil {
		return nil, fmt.Errorf("invalid treasury key: %w", err)
	}
	custodialKey, err := crypto.HexToECDSA(os.Getenv("AB_CUSTODIAL_KEY"))
	if err != nil {
		return nil, fmt.Errorf("invalid custodial key: %w", err)
	}

	erc20, err := abi.JSON(strings.NewReader(erc20Abi))
	if err != nil {
		return nil, err
	}
	identity, err := abi.JSON(strings.NewReader(identityAbi))
	if err != nil {
		return nil, err
	}

	return &rpcService{
		client:        client,
		chainId:       chainId,
		treasuryKey:   treasuryKey,
		custodialKey:  custodialKey,
		custodial:     crypto.PubkeyToAddress(custodialKey.PublicKey),
		stableToken:   common.HexToAddress(agentboxConfig.Chain.StableToken),
		identityToken: common.HexToAddress(agentboxConfig.Chain.IdentityToken),
		erc20:         erc20,
		identity:      identity,
	}, nil
}

func (s *rpcService) Transfer(ctx context.Context, asset Asset, amount uint64, to string) (string, error) {
	target := common.HexToAddress(to)
	value := new(big.Int).SetUint64(amount)

	switch asset {
	case AssetNative:
		tx, err := s.sendTransaction(ctx, s.treasuryKey, target, value, nil)
		if err != nil {
			return "", err
		}
		return tx.Hash().Hex(), nil
	case AssetStable:
		callData, err := s.erc20.Pack("transfer", target, value)
		if err != nil {
			return "", err
		}
		tx, err := s.sendTransaction(ctx, s.treasuryKey, s.stableToken, nil, callData)
		if err != nil {
			return "", err
		}
		return tx.Hash().Hex(), nil
	}

	return "", fmt.Errorf("unknown asset %q", asset)
}

func (s *rpcService) MintIdentity(ctx context.Context, descriptor IdentityDescriptor) (string, error) {
	document, err := json.Marshal(descriptor)
	if err != nil {
		return "", err
	}
	uri := descriptorUriPrefix + base64.StdEncoding.EncodeToString(document)

	callData, err := s.identity.Pack("mintTo", s.custodial, uri)
	if err != nil {
		return "", err
	}

	tx, err := s.sendTransaction(ctx, s.custodialKey, s.identityToken, nil, callData)
	if err != nil {
		return "", err
	}

	tokenId, err := s.waitForMintedToken(ctx, tx)
	if err != nil {
		return "", err
	}

	log.Info("[CHAIN] Minted identity token", "tokenId", tokenId, "tx", tx.Hash().Hex())

	return tokenId.String(), nil
}

func (s *rpcService) TransferIdentity(ctx context.Context, mint string, to string) error {
	tokenId, ok := new(big.Int).SetString(mint, 10)
	if !ok {
		return fmt.Errorf("invalid token id %q", mint)
	}

	callData, err := s.identity.Pack("safeTransferFrom", s.custodial, common.HexToAddress(to), tokenId)
	if err != nil {
		return err
	}

	tx, err := s.sendTransaction(ctx, s.custodialKey, s.identityToken, nil, callData)
	if err != nil {
		return err
	}

	if _, err := s.waitForReceipt(ctx, tx); err != nil {
		return err
	}

	return nil
}

func (s *rpcService) LoadIdentity(ctx context.Context, mint string) (*IdentityDescriptor, error) {
	tokenId, ok := new(big.Int).SetString(mint, 10)
	if !ok {
		return nil, fmt.Errorf("invalid token id %q", mint)
	}

	uri, err := s.callString(ctx, s.identityToken, s.identity, "tokenURI", tokenId)
	if err != nil {
		return nil, err
	}

	if !strings.HasPrefix(uri, descriptorUriPrefix) {
		return nil, fmt.Errorf("token %s carries an unexpected descriptor URI", mint)
	}

	document, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(uri, descriptorUriPrefix))
	if err != nil {
		return nil, fmt.Errorf("failed to decode descriptor of token %s: %w", mint, err)
	}

	descriptor := &IdentityDescriptor{}
	if err := json.Unmarshal(document, descriptor); err != nil {
		return nil, fmt.Errorf("failed to parse descriptor of token %s: %w", mint, err)
	}

	return descriptor, nil
}

func (s *rpcService) OwnedTokensOf(ctx context.Context, wallet string) ([]string, error) {
	owner := common.HexToAddress(wallet)

	balance, err := s.callBigInt(ctx, s.identityToken, s.identity, "balanceOf", owner)
	if err != nil {
		return nil, err
	}

	tokens := make([]string, 0, balance.Int64())
	for index := int64(0); index < balance.Int64(); index++ {
		tokenId, err := s.callBigInt(ctx, s.identityToken, s.identity, "tokenOfOwnerByIndex", owner, big.NewInt(index))
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, tokenId.String())
	}

	return tokens, nil
}

func (s *rpcService) sendTransaction(
	ctx context.Context,
	key *ecdsa.PrivateKey,
	to common.Address,
	value *big.Int,
	callData []byte,
) (*types.Transaction, error) {
	from := crypto.PubkeyToAddress(key.PublicKey)

	nonce, err := s.client.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, err
	}
	gasPrice, err := s.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, err
	}

	gasLimit, err := s.client.EstimateGas(ctx, ethereum.CallMsg{
		From: from, To: &to, Value: value, Data: callData,
	})
	if err != nil {
		return nil, err
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    value,
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     callData,
	})

	signedTx, err := types.SignTx(tx, types.LatestSignerForChainID(s.chainId), key)
	if err != nil {
		return nil, err
	}

	if err := s.client.SendTransaction(ctx, signedTx); err != nil {
		return nil, err
	}

	return signedTx, nil
}

func (s *rpcService) waitForReceipt(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	for {
		receipt, err := s.client.TransactionReceipt(ctx, tx.Hash())
		if err == nil {
			if receipt.Status != types.ReceiptStatusSuccessful {
				return nil, fmt.Errorf("transaction %s reverted", tx.Hash().Hex())
			}
			return receipt, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Second):
		}
	}
}

// waitForMintedToken extracts the minted token id from the ERC-721 Transfer
// event emitted by the mint transaction.
func (s *rpcService) waitForMintedToken(ctx context.Context, tx *types.Transaction) (*big.Int, error) {
	receipt, err := s.waitForReceipt(ctx, tx)
	if err != nil {
		return nil, err
	}

	transferTopic := crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))
	for _, entry := range receipt.Logs {
		if entry.Address == s.identityToken && len(entry.Topics) == 4 && entry.Topics[0] == transferTopic {
			return new(big.Int).SetBytes(entry.Topics[3].Bytes()), nil
		}
	}

	return nil, fmt.Errorf("mint transaction %s emitted no transfer event", tx.Hash().Hex())
}

func (s *rpcService) callBigInt(
	ctx context.Context,
	contract common.Address,
	contractAbi abi.ABI,
	method string,
	args ...any,
) (*big.Int, error) {
	callData, err := contractAbi.Pack(method, args...)
	if err != nil {
		return nil, err
	}

	result, err := s.client.CallContract(ctx, ethereum.CallMsg{To: &contract, Data: callData}, nil)
	if err != nil {
		return nil, err
	}

	values, err := contractAbi.Unpack(method, result)
	if err != nil || len(values) != 1 {
		return nil, fmt.Errorf("unexpected result from %s: %w", method, err)
	}

	value, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected result type from %s", method)
	}

	return value, nil
}

func (s *rpcService) callString(
	ctx context.Context,
	contract common.Address,
	contractAbi abi.ABI,
	method string,
	args ...any,
) (string, error) {
	callData, err := contractAbi.Pack(method, args...)
	if err != nil {
		return "", err
	}

	result, err := s.client.CallContract(ctx, ethereum.CallMsg{To: &contract, Data: callData}, nil)
	if err != nil {
		return "", err
	}

	values, err := contractAbi.Unpack(method, result)
	if err != nil || len(values) != 1 {
		return "", fmt.Errorf("unexpected result from %s: %w", method, err)
	}

	value, ok := values[0].(string)
	if !ok {
		return "", fmt.Errorf("unexpected result type from %s", method)
	}

	return value, nil
}
