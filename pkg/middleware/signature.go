package middleware

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"ctfex.com/pkg/common"
	"ctfex.com/pkg/logger"
	"ctfex.com/pkg/xerr"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	HeaderSignature = "X-Signature" // 0x + 65 字节 r||s||v
	HeaderTimestamp = "X-Timestamp" // unix 秒

	signerKey = "signer"
)

// SignerConfig: Domain 写进签名消息, 防止同一签名拿去别的服务用
type SignerConfig struct {
	Domain  string
	MaxSkew time.Duration
	Now     func() time.Time
	MaxBody int64
}

// SignedPayload is the text a client signs with personal_sign (EIP-191):
//
//	<domain>\n<METHOD> <path?query>\n<timestamp>\n<keccak256(body) hex>
func SignedPayload(domain, method, uri string, ts int64, body []byte) string {
	return fmt.Sprintf("%s\n%s %s\n%d\n%s", domain, method, uri, ts, crypto.Keccak256Hash(body).Hex())
}

// TextHash is keccak256("\x19Ethereum Signed Message:\n" + len + msg).
func TextHash(msg string) []byte {
	return crypto.Keccak256([]byte(fmt.Sprintf("\x19Ethereum Signed Message:\n%d%s", len(msg), msg)))
}

// RecoverSigner returns the address that produced sig over msg. v may be
// 0/1 or 27/28.
func RecoverSigner(msg string, sig []byte) (ethcommon.Address, error) {
	if len(sig) != crypto.SignatureLength {
		return ethcommon.Address{}, fmt.Errorf("signature is %d bytes", len(sig))
	}
	s := make([]byte, len(sig))
	copy(s, sig)
	if s[crypto.RecoveryIDOffset] >= 27 {
		s[crypto.RecoveryIDOffset] -= 27
	}
	pub, err := crypto.SigToPub(TextHash(msg), s)
	if err != nil {
		return ethcommon.Address{}, err
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// Signer authenticates a request by its signature and stores the
// recovered address for Caller. Requests without a valid, fresh signature
// are answered 401 and go no further.
func Signer(cfg SignerConfig) gin.HandlerFunc {
	if cfg.MaxSkew <= 0 {
		cfg.MaxSkew = 5 * time.Minute
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.MaxBody <= 0 {
		cfg.MaxBody = 1 << 20
	}
	return func(c *gin.Context) {
		who, err := verify(c, cfg)
		if err != nil {
			logger.Warn(c.Request.Context(), "request signature rejected",
				zap.String("path", c.Request.URL.Path), zap.Error(err))
			common.Fail(c, http.StatusUnauthorized, xerr.Unauthorized, "missing or invalid request signature")
			c.Abort()
			return
		}
		c.Set(signerKey, who)
		c.Next()
	}
}

func verify(c *gin.Context, cfg SignerConfig) (ethcommon.Address, error) {
	ts, err := strconv.ParseInt(c.GetHeader(HeaderTimestamp), 10, 64)
	if err != nil {
		return ethcommon.Address{}, fmt.Errorf("bad %s: %w", HeaderTimestamp, err)
	}
	skew := cfg.Now().Sub(time.Unix(ts, 0))
	if skew > cfg.MaxSkew || -skew > cfg.MaxSkew {
		return ethcommon.Address{}, fmt.Errorf("timestamp %d outside %s window", ts, cfg.MaxSkew)
	}
	sig, err := hexutil.Decode(c.GetHeader(HeaderSignature))
	if err != nil {
		return ethcommon.Address{}, fmt.Errorf("bad %s: %w", HeaderSignature, err)
	}

	var body []byte
	if c.Request.Body != nil {
		body, err = io.ReadAll(io.LimitReader(c.Request.Body, cfg.MaxBody))
		if err != nil {
			return ethcommon.Address{}, err
		}
		// handler 还要再读一次
		c.Request.Body = io.NopCloser(bytes.NewReader(body))
	}
	msg := SignedPayload(cfg.Domain, c.Request.Method, c.Request.URL.RequestURI(), ts, body)
	return RecoverSigner(msg, sig)
}

// Caller is the signer Signer verified for this request.
func Caller(c *gin.Context) (ethcommon.Address, bool) {
	v, ok := c.Get(signerKey)
	if !ok {
		return ethcommon.Address{}, false
	}
	who, ok := v.(ethcommon.Address)
	return who, ok
}
