package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/storymint/mint-pipeline/internal/domain"
)

var transferEventSignature = gethcrypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))

// storyNFTABI is the slice of the collection contract the pipeline
// calls: a single owner-gated mint.
const storyNFTABI = `[{"type":"function","name":"mintTo","stateMutability":"nonpayable","inputs":[{"name":"to","type":"address"},{"name":"tokenURI","type":"string"}],"outputs":[{"name":"tokenId","type":"uint256"}]}]`

// ReceiptReader is the subset of the Ethereum RPC used for status
// polling.
type ReceiptReader interface {
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*gethtypes.Receipt, error)
}

// Transactor submits a bound contract call.
type Transactor interface {
	Transact(opts *bind.TransactOpts, method string, params ...interface{}) (*gethtypes.Transaction, error)
}

// EVMClient drives the story NFT contract over an Ethereum RPC
// endpoint.
type EVMClient struct {
	receipts ReceiptReader
	contract Transactor
	auth     *bind.TransactOpts
}

// DialEVM connects to the RPC endpoint and prepares a keyed
// transactor for the collection contract.
func DialEVM(ctx context.Context, endpoint, contractAddr, privateKeyHex string) (*EVMClient, error) {
	trimmed := strings.TrimSpace(endpoint)
	if trimmed == "" {
		return nil, fmt.Errorf("chain rpc endpoint required")
	}
	if !common.IsHexAddress(contractAddr) {
		return nil, fmt.Errorf("invalid contract address %q", contractAddr)
	}

	client, err := ethclient.DialContext(ctx, trimmed)
	if err != nil {
		return nil, fmt.Errorf("dialing chain rpc: %w", err)
	}

	key, err := gethcrypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parsing chain private key: %w", err)
	}

	chainID, err := client.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching chain id: %w", err)
	}

	auth, err := bind.NewKeyedTransactorWithChainID(key, chainID)
	if err != nil {
		return nil, fmt.Errorf("building transactor: %w", err)
	}

	parsed, err := abi.JSON(strings.NewReader(storyNFTABI))
	if err != nil {
		return nil, fmt.Errorf("parsing contract abi: %w", err)
	}
	contract := bind.NewBoundContract(common.HexToAddress(contractAddr), parsed, client, client, client)

	return &EVMClient{receipts: client, contract: contract, auth: auth}, nil
}

// SubmitMint broadcasts mintTo(wallet, metadataURI) and returns the
// transaction hash. Submission failures are fatal for the attempt;
// the saga's intent row decides whether a retry resubmits.
func (c *EVMClient) SubmitMint(ctx context.Context, wallet, metadataURI string) (string, error) {
	if !common.IsHexAddress(wallet) {
		return "", domain.Validationf("invalid author wallet %q", wallet)
	}

	opts := *c.auth
	opts.Context = ctx

	tx, err := c.contract.Transact(&opts, "mintTo", common.HexToAddress(wallet), metadataURI)
	if err != nil {
		return "", domain.Transientf(err, "submitting mint transaction")
	}
	return tx.Hash().Hex(), nil
}

// CheckTxStatus polls the receipt for a submitted mint. A missing
// receipt means the transaction is still pending. On confirmation the
// token id is decoded from the ERC-721 Transfer log emitted by the
// mint (topic 3 is the token id).
func (c *EVMClient) CheckTxStatus(ctx context.Context, txHash string) (*TxStatus, error) {
	receipt, err := c.receipts.TransactionReceipt(ctx, common.HexToHash(txHash))
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return &TxStatus{State: TxPending}, nil
		}
		return nil, domain.Transientf(err, "fetching receipt for %s", txHash)
	}
	if receipt == nil {
		return &TxStatus{State: TxPending}, nil
	}
	if receipt.Status != gethtypes.ReceiptStatusSuccessful {
		return &TxStatus{State: TxReverted}, nil
	}

	status := &TxStatus{State: TxConfirmed}
	for _, log := range receipt.Logs {
		if log == nil || len(log.Topics) != 4 {
			continue
		}
		if log.Topics[0] != transferEventSignature {
			continue
		}
		// Mint transfers originate from the zero address.
		if common.BytesToAddress(log.Topics[1].Bytes()) != (common.Address{}) {
			continue
		}
		status.TokenID = new(big.Int).SetBytes(log.Topics[3].Bytes()).String()
		break
	}
	if status.TokenID == "" {
		return nil, domain.Fatalf(nil, "confirmed transaction %s has no mint transfer log", txHash)
	}
	return status, nil
}
