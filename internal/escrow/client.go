package escrow

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/senyabanana/bounty-service/internal/metrics"
	"github.com/senyabanana/bounty-service/internal/models"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sirupsen/logrus"
)

const (
	defaultConfirmTimeout = 2 * time.Minute
	defaultPollInterval   = 2 * time.Second
	gasHeadroomPercent    = 20
)

// Backend - подмножество RPC Ethereum, используемое клиентом.
type Backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *gethtypes.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*gethtypes.Receipt, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Config - настройки клиента контракта.
type Config struct {
	ContractAddress string
	PrivateKeyHex   string
	ChainID         int64
	Decimals        uint8
	ConfirmTimeout  time.Duration
	PollInterval    time.Duration
}

// Client реализует Gateway поверх go-ethereum.
type Client struct {
	backend  Backend
	abi      abi.ABI
	contract common.Address
	key      *ecdsa.PrivateKey
	from     common.Address
	chainID  *big.Int
	decimals uint8
	timeout  time.Duration
	poll     time.Duration
	logger   *logrus.Logger
	metrics  *metrics.Workflow

	// nonceMu сериализует выдачу nonce для единственного ключа подписи.
	nonceMu sync.Mutex
}

var _ Gateway = (*Client)(nil)

// Dial подключается к узлу и создает клиент контракта.
func Dial(ctx context.Context, rpcURL string, cfg Config, logger *logrus.Logger) (*Client, error) {
	trimmed := strings.TrimSpace(rpcURL)
	if trimmed == "" {
		return nil, errors.New("escrow rpc url required")
	}
	eth, err := ethclient.DialContext(ctx, trimmed)
	if err != nil {
		return nil, fmt.Errorf("dial escrow rpc: %w", err)
	}
	return NewClient(ctx, eth, cfg, logger)
}

// NewClient создает клиент контракта поверх произвольного Backend.
func NewClient(ctx context.Context, backend Backend, cfg Config, logger *logrus.Logger) (*Client, error) {
	if backend == nil {
		return nil, errors.New("escrow backend not configured")
	}
	if !ValidAddress(cfg.ContractAddress) {
		return nil, fmt.Errorf("invalid escrow contract address %q", cfg.ContractAddress)
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(cfg.PrivateKeyHex), "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse signer key: %w", err)
	}
	parsed, err := abi.JSON(strings.NewReader(bountyEscrowABI))
	if err != nil {
		return nil, fmt.Errorf("parse escrow abi: %w", err)
	}

	chainID := big.NewInt(cfg.ChainID)
	if cfg.ChainID == 0 {
		chainID, err = backend.ChainID(ctx)
		if err != nil {
			return nil, fmt.Errorf("fetch chain id: %w", err)
		}
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	c := &Client{
		backend:  backend,
		abi:      parsed,
		contract: common.HexToAddress(cfg.ContractAddress),
		key:      key,
		from:     crypto.PubkeyToAddress(key.PublicKey),
		chainID:  chainID,
		decimals: cfg.Decimals,
		timeout:  cfg.ConfirmTimeout,
		poll:     cfg.PollInterval,
		logger:   logger,
		metrics:  metrics.Default(),
	}
	if c.decimals == 0 {
		c.decimals = DefaultDecimals
	}
	if c.timeout <= 0 {
		c.timeout = defaultConfirmTimeout
	}
	if c.poll <= 0 {
		c.poll = defaultPollInterval
	}
	return c, nil
}

// Sender возвращает адрес, от имени которого подписываются транзакции.
func (c *Client) Sender() string {
	return c.from.Hex()
}

// CreateBounty создает запись эскроу и возвращает идентификатор баунти в контракте.
func (c *Client) CreateBounty(ctx context.Context, p CreateBountyParams) (string, Receipt, error) {
	const op = "escrow.createBounty"
	code, ok := paymentStructureCode[string(p.PaymentStructure)]
	if !ok {
		return "", Receipt{}, models.NewValidationError(op, "unknown payment structure")
	}
	if !ValidAddress(p.TokenAddress) {
		return "", Receipt{}, models.NewValidationError(op, "invalid token address")
	}
	value, err := c.scale(op, p.Value)
	if err != nil {
		return "", Receipt{}, err
	}
	upfront, err := c.scale(op, p.UpfrontAmount)
	if err != nil {
		return "", Receipt{}, err
	}
	completion, err := c.scale(op, p.CompletionAmount)
	if err != nil {
		return "", Receipt{}, err
	}

	receipt, raw, err := c.transact(ctx, op, "createBounty",
		p.Title, p.Category, value, common.HexToAddress(p.TokenAddress), code, upfront, completion)
	if err != nil {
		return "", Receipt{}, err
	}
	id, err := c.bountyIDFromLogs(raw)
	if err != nil {
		return "", receipt, &models.WorkflowError{Kind: models.KindContract, Op: op, TxHash: receipt.TxHash, Err: err}
	}
	receipt.BountyID = id.String()
	return receipt.BountyID, receipt, nil
}

// CreateMilestones регистрирует график этапов.
func (c *Client) CreateMilestones(ctx context.Context, onchainID string, dueDates []time.Time, amounts []float64) (Receipt, error) {
	const op = "escrow.createMilestones"
	id, err := parseOnchainID(op, onchainID)
	if err != nil {
		return Receipt{}, err
	}
	if len(dueDates) != len(amounts) {
		return Receipt{}, models.NewValidationError(op, "due dates and amounts length mismatch")
	}
	dates := make([]*big.Int, len(dueDates))
	values := make([]*big.Int, len(amounts))
	for i := range amounts {
		dates[i] = big.NewInt(dueDates[i].Unix())
		if values[i], err = c.scale(op, amounts[i]); err != nil {
			return Receipt{}, err
		}
	}
	receipt, _, err := c.transact(ctx, op, "createMilestones", id, dates, values)
	return receipt, err
}

// PlaceBid регистрирует намерение исполнителя.
func (c *Client) PlaceBid(ctx context.Context, onchainID string) (Receipt, error) {
	const op = "escrow.placeBid"
	id, err := parseOnchainID(op, onchainID)
	if err != nil {
		return Receipt{}, err
	}
	receipt, _, err := c.transact(ctx, op, "placeBid", id)
	return receipt, err
}

// AssignBounty закрепляет исполнителя и ревьюеров и запускает эскроу.
func (c *Client) AssignBounty(ctx context.Context, onchainID, bidder, technicalReviewer, finalApprover string) (Receipt, error) {
	const op = "escrow.assignBounty"
	id, err := parseOnchainID(op, onchainID)
	if err != nil {
		return Receipt{}, err
	}
	for _, addr := range []string{bidder, technicalReviewer, finalApprover} {
		if !ValidAddress(addr) {
			return Receipt{}, models.NewValidationError(op, fmt.Sprintf("invalid address %q", addr))
		}
	}
	receipt, _, err := c.transact(ctx, op, "assignBounty", id,
		common.HexToAddress(bidder), common.HexToAddress(technicalReviewer), common.HexToAddress(finalApprover))
	return receipt, err
}

// ApproveMilestone выплачивает этап.
func (c *Client) ApproveMilestone(ctx context.Context, onchainID string, milestoneIndex int) (Receipt, error) {
	const op = "escrow.approveMilestone"
	id, err := parseOnchainID(op, onchainID)
	if err != nil {
		return Receipt{}, err
	}
	if milestoneIndex < 0 {
		return Receipt{}, models.NewValidationError(op, "milestone index must be non-negative")
	}
	receipt, _, err := c.transact(ctx, op, "approveMilestone", id, big.NewInt(int64(milestoneIndex)))
	return receipt, err
}

// ApproveCompletion выплачивает финальную сумму и закрывает эскроу.
func (c *Client) ApproveCompletion(ctx context.Context, onchainID string) (Receipt, error) {
	const op = "escrow.approveCompletion"
	id, err := parseOnchainID(op, onchainID)
	if err != nil {
		return Receipt{}, err
	}
	receipt, _, err := c.transact(ctx, op, "approveCompletion", id)
	return receipt, err
}

// CancelBounty возвращает средства эскроу создателю.
func (c *Client) CancelBounty(ctx context.Context, onchainID string) (Receipt, error) {
	const op = "escrow.cancelBounty"
	id, err := parseOnchainID(op, onchainID)
	if err != nil {
		return Receipt{}, err
	}
	receipt, _, err := c.transact(ctx, op, "cancelBounty", id)
	return receipt, err
}

// Confirmed проверяет, что транзакция включена в блок и выполнена успешно.
// Используется при сверке и ничего не отправляет в сеть.
func (c *Client) Confirmed(ctx context.Context, txHash string) (Receipt, error) {
	const op = "escrow.confirmed"
	if !isTxHash(txHash) {
		return Receipt{}, models.NewValidationError(op, "invalid transaction hash")
	}
	hash := common.HexToHash(txHash)
	receipt, err := c.backend.TransactionReceipt(ctx, hash)
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return Receipt{}, models.NewNotFoundError(op, fmt.Sprintf("transaction %s not found", hash.Hex()))
		}
		return Receipt{}, Classify(op, hash.Hex(), err)
	}
	if receipt.Status != gethtypes.ReceiptStatusSuccessful {
		return Receipt{}, &models.WorkflowError{Kind: models.KindContract, Op: op, TxHash: hash.Hex(),
			Message: fmt.Sprintf("transaction %s failed", hash.Hex())}
	}
	out := toReceipt(receipt)
	if id, err := c.bountyIDFromLogs(receipt); err == nil {
		out.BountyID = id.String()
	}
	return out, nil
}

// transact упаковывает вызов, подписывает, отправляет и ждет подтверждения.
func (c *Client) transact(ctx context.Context, op, method string, args ...interface{}) (Receipt, *gethtypes.Receipt, error) {
	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return Receipt{}, nil, &models.WorkflowError{Kind: models.KindContract, Op: op, Message: "pack arguments", Err: err}
	}

	signed, err := c.send(ctx, op, data)
	if err != nil {
		return Receipt{}, nil, err
	}
	hash := signed.Hash().Hex()
	entry := c.logger.WithFields(logrus.Fields{"op": op, "tx_hash": hash})
	entry.Info("transaction sent, waiting for confirmation")

	// отмена запроса не прерывает ожидание уже отправленной транзакции
	waitCtx := context.WithoutCancel(ctx)
	started := time.Now()
	raw, err := c.waitConfirmed(waitCtx, signed.Hash())
	c.metrics.ObserveConfirmation(method, time.Since(started))
	if err != nil {
		entry.WithError(err).Warn("transaction not confirmed")
		return Receipt{}, nil, notConfirmed(op, hash, err)
	}
	if raw.Status != gethtypes.ReceiptStatusSuccessful {
		replayCtx, cancel := context.WithTimeout(waitCtx, c.timeout)
		reason := c.replayRevert(replayCtx, data, raw.BlockNumber)
		cancel()
		entry.WithField("reason", reason).Warn("transaction reverted")
		return Receipt{}, nil, Classify(op, hash, errors.New("execution reverted: "+reason))
	}

	receipt := toReceipt(raw)
	entry.WithField("block", receipt.BlockNumber).Info("transaction confirmed")
	return receipt, raw, nil
}

func (c *Client) send(ctx context.Context, op string, data []byte) (*gethtypes.Transaction, error) {
	c.nonceMu.Lock()
	defer c.nonceMu.Unlock()

	nonce, err := c.backend.PendingNonceAt(ctx, c.from)
	if err != nil {
		return nil, Classify(op, "", err)
	}
	gasPrice, err := c.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, Classify(op, "", err)
	}
	to := c.contract
	gas, err := c.backend.EstimateGas(ctx, ethereum.CallMsg{From: c.from, To: &to, GasPrice: gasPrice, Data: data})
	if err != nil {
		return nil, Classify(op, "", err)
	}
	gas += gas * gasHeadroomPercent / 100

	tx := gethtypes.NewTx(&gethtypes.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Gas:      gas,
		GasPrice: gasPrice,
		Data:     data,
	})
	signed, err := gethtypes.SignTx(tx, gethtypes.LatestSignerForChainID(c.chainID), c.key)
	if err != nil {
		return nil, &models.WorkflowError{Kind: models.KindContract, Op: op, Message: "sign transaction", Err: err}
	}
	if err := c.backend.SendTransaction(ctx, signed); err != nil {
		return nil, Classify(op, "", err)
	}
	return signed, nil
}

// waitConfirmed опрашивает квитанцию до подтверждения или истечения таймаута.
func (c *Client) waitConfirmed(ctx context.Context, hash common.Hash) (*gethtypes.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	ticker := time.NewTicker(c.poll)
	defer ticker.Stop()
	for {
		receipt, err := c.backend.TransactionReceipt(ctx, hash)
		if err == nil && receipt != nil {
			return receipt, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// replayRevert повторяет вызов на блоке транзакции, чтобы получить причину отката.
func (c *Client) replayRevert(ctx context.Context, data []byte, block *big.Int) string {
	to := c.contract
	_, err := c.backend.CallContract(ctx, ethereum.CallMsg{From: c.from, To: &to, Data: data}, block)
	if err == nil {
		return "unknown reason"
	}
	if reason, ok := RevertReason(err); ok {
		return reason
	}
	return err.Error()
}

func (c *Client) bountyIDFromLogs(receipt *gethtypes.Receipt) (*big.Int, error) {
	event, ok := c.abi.Events["BountyCreated"]
	if !ok {
		return nil, errors.New("BountyCreated event missing from abi")
	}
	for _, l := range receipt.Logs {
		if l == nil || l.Address != c.contract || len(l.Topics) < 2 {
			continue
		}
		if l.Topics[0] != event.ID {
			continue
		}
		return new(big.Int).SetBytes(l.Topics[1].Bytes()), nil
	}
	return nil, errors.New("BountyCreated event not found in receipt")
}

func (c *Client) scale(op string, amount float64) (*big.Int, error) {
	v, err := ToFixedPoint(amount, c.decimals)
	if err != nil {
		return nil, models.NewValidationError(op, err.Error())
	}
	return v, nil
}

func parseOnchainID(op, onchainID string) (*big.Int, error) {
	id, ok := new(big.Int).SetString(strings.TrimSpace(onchainID), 10)
	if !ok || id.Sign() < 0 {
		return nil, models.NewValidationError(op, fmt.Sprintf("invalid onchain id %q", onchainID))
	}
	return id, nil
}

func isTxHash(s string) bool {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "0x") || len(s) != 66 {
		return false
	}
	for _, r := range s[2:] {
		if !strings.ContainsRune("0123456789abcdefABCDEF", r) {
			return false
		}
	}
	return true
}

func toReceipt(r *gethtypes.Receipt) Receipt {
	out := Receipt{TxHash: r.TxHash.Hex()}
	if r.BlockNumber != nil {
		out.BlockNumber = r.BlockNumber.Uint64()
	}
	return out
}
