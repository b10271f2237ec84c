package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"escrow-service/config"
	"escrow-service/internal/apperr"
	"escrow-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	gatewayVersion    = "2.1.0"
	gatewayDateLayout = "20060102150405"
	gatewayExpiry     = 15 * time.Minute

	txnRefPrefix    = "WALLET-"
	orderInfoPrefix = "WALLET_DEPOSIT_"

	paramSecureHash     = "vnp_SecureHash"
	paramSecureHashType = "vnp_SecureHashType"
)

// IPN response codes understood by the gateway
const (
	RspConfirmSuccess   = "00"
	RspOrderNotFound    = "02"
	RspInvalidTmnCode   = "03"
	RspMissingReference = "06"
	RspInvalidSignature = "97"
	RspUnknownError     = "99"
)

var gatewayZone = time.FixedZone("ICT", 7*60*60)

// Depositor credits gateway deposits at most once per reference
type Depositor interface {
	DepositIfNotProcessed(ctx context.Context, userID, amountExternal int64, referenceID, source string) (bool, error)
}

// GatewayService signs outgoing deposit URLs and verifies gateway callbacks
type GatewayService struct {
	cfg      config.GatewayConfig
	deposits Depositor
	now      func() time.Time
	logger   *zap.Logger
}

// NewGatewayService creates a new payment gateway adapter
func NewGatewayService(cfg config.GatewayConfig, deposits Depositor) *GatewayService {
	return &GatewayService{
		cfg:      cfg,
		deposits: deposits,
		now:      time.Now,
		logger:   util.GetLogger(),
	}
}

// CallbackResult is the outcome of a gateway return or IPN callback
type CallbackResult struct {
	RspCode        string `json:"rsp_code"`
	Message        string `json:"message"`
	UserID         int64  `json:"user_id,omitempty"`
	AmountExternal int64  `json:"amount_external,omitempty"`
	ReferenceID    string `json:"reference_id,omitempty"`
	Applied        bool   `json:"applied"`
}

// Success reports whether the payment was confirmed
func (r *CallbackResult) Success() bool {
	return r.RspCode == RspConfirmSuccess
}

// IPNBody renders the plain text acknowledgement the gateway expects
func (r *CallbackResult) IPNBody() string {
	return "RspCode=" + r.RspCode + "&Message=" + r.Message
}

// PaymentURL builds a signed redirect URL for a wallet top-up of amountExternal
func (s *GatewayService) PaymentURL(userID, amountExternal int64, clientIP string) (string, error) {
	if userID <= 0 {
		return "", apperr.Validation("invalid user id %d", userID)
	}
	if amountExternal <= 0 {
		return "", apperr.Validation("amount must be positive, got %d", amountExternal)
	}

	now := s.now().In(gatewayZone)
	params := map[string]string{
		"vnp_Version":    gatewayVersion,
		"vnp_Command":    "pay",
		"vnp_TmnCode":    s.cfg.TmnCode,
		"vnp_Amount":     strconv.FormatInt(amountExternal*100, 10),
		"vnp_CurrCode":   "VND",
		"vnp_TxnRef":     newTxnRef(userID, now),
		"vnp_OrderInfo":  orderInfoPrefix + strconv.FormatInt(userID, 10),
		"vnp_OrderType":  "other",
		"vnp_Locale":     "vn",
		"vnp_ReturnUrl":  s.cfg.ReturnURL,
		"vnp_IpAddr":     clientIP,
		"vnp_CreateDate": now.Format(gatewayDateLayout),
		"vnp_ExpireDate": now.Add(gatewayExpiry).Format(gatewayDateLayout),
	}

	query := canonicalQuery(params)
	hash := sign(s.cfg.HashSecret, query)
	return s.cfg.PayURL + "?" + query +
		"&" + paramSecureHashType + "=HMACSHA512&" + paramSecureHash + "=" + hash, nil
}

// VerifySignature checks vnp_SecureHash against the remaining parameters
func (s *GatewayService) VerifySignature(params map[string]string) bool {
	got := params[paramSecureHash]
	if got == "" {
		return false
	}
	fields := make(map[string]string, len(params))
	for k, v := range params {
		if k == paramSecureHash || k == paramSecureHashType {
			continue
		}
		fields[k] = v
	}
	want := sign(s.cfg.HashSecret, canonicalQuery(fields))
	return strings.EqualFold(got, want)
}

// HandleCallback verifies a gateway callback and credits the deposit it confirms
func (s *GatewayService) HandleCallback(ctx context.Context, params map[string]string) (*CallbackResult, error) {
	ctx, span := util.StartSpan(ctx, "GatewayService.HandleCallback")
	var err error
	defer func() { util.EndSpan(span, err) }()

	if !s.VerifySignature(params) {
		return &CallbackResult{RspCode: RspInvalidSignature, Message: "Invalid signature"}, nil
	}
	if params["vnp_TmnCode"] != s.cfg.TmnCode {
		return &CallbackResult{RspCode: RspInvalidTmnCode, Message: "Invalid TmnCode"}, nil
	}

	rspCode := valueOr(params, "vnp_ResponseCode", RspUnknownError)
	txStatus := valueOr(params, "vnp_TransactionStatus", RspUnknownError)
	if rspCode != RspConfirmSuccess || txStatus != RspConfirmSuccess {
		s.logger.Info("Gateway reported failed payment",
			zap.String("txn_ref", params["vnp_TxnRef"]),
			zap.String("rsp_code", rspCode),
			zap.String("transaction_status", txStatus))
		return &CallbackResult{RspCode: rspCode, Message: "Payment failed"}, nil
	}

	userID, ok := extractUserID(params["vnp_TxnRef"], params["vnp_OrderInfo"])
	if !ok {
		return &CallbackResult{RspCode: RspOrderNotFound, Message: "Order not found"}, nil
	}
	reference := strings.TrimSpace(params["vnp_TransactionNo"])
	if reference == "" {
		return &CallbackResult{RspCode: RspMissingReference, Message: "Missing TransactionNo"}, nil
	}
	amount, _ := strconv.ParseInt(params["vnp_Amount"], 10, 64)
	amount /= 100

	applied, err := s.deposits.DepositIfNotProcessed(ctx, userID, amount, reference, "gateway")
	if err != nil {
		s.logger.Error("Failed to credit gateway deposit",
			zap.Int64("user_id", userID),
			zap.String("reference_id", reference),
			zap.Error(err))
		return &CallbackResult{RspCode: RspUnknownError, Message: "Unknown error"}, err
	}

	return &CallbackResult{
		RspCode:        RspConfirmSuccess,
		Message:        "Confirm Success",
		UserID:         userID,
		AmountExternal: amount,
		ReferenceID:    reference,
		Applied:        applied,
	}, nil
}

// canonicalQuery joins non-empty params in key order, form-encoded
func canonicalQuery(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k, v := range params {
		if v != "" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(k))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(params[k]))
	}
	return b.String()
}

func sign(secret, data string) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write([]byte(data))
	return hex.EncodeToString(mac.Sum(nil))
}

func newTxnRef(userID int64, now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("%s%d-%s-%s", txnRefPrefix, userID, now.Format(gatewayDateLayout), suffix)
}

func extractUserID(txnRef, orderInfo string) (int64, bool) {
	if strings.HasPrefix(txnRef, txnRefPrefix) {
		parts := strings.Split(txnRef, "-")
		id, err := strconv.ParseInt(parts[1], 10, 64)
		return id, err == nil && id > 0
	}
	if strings.HasPrefix(orderInfo, orderInfoPrefix) {
		id, err := strconv.ParseInt(strings.TrimPrefix(orderInfo, orderInfoPrefix), 10, 64)
		return id, err == nil && id > 0
	}
	return 0, false
}

func valueOr(params map[string]string, key, def string) string {
	if v, ok := params[key]; ok && v != "" {
		return v
	}
	return def
}
