package xerr

import (
	"errors"
	"fmt"
)

// Kind groups errors by how a caller should react to them.
type Kind uint8

const (
	KindInternal      Kind = iota // unexpected
	KindValidation                // bad input, rejected before any state change
	KindPolicy                    // POST_ONLY cross, FOK underfill
	KindAuthorization             // caller may not act on the resource
	KindMarketState               // market not registered, paused, resolved, expired
	KindResource                  // a settlement leg cannot complete
	KindNotFound
	KindUnavailable // engine busy or stopped
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindPolicy:
		return "policy"
	case KindAuthorization:
		return "authorization"
	case KindMarketState:
		return "market_state"
	case KindResource:
		return "resource"
	case KindNotFound:
		return "not_found"
	case KindUnavailable:
		return "unavailable"
	default:
		return "internal"
	}
}

// 常用错误码定义
const (
	OK                 = 200
	ServerCommonError  = 500
	RequestParamsError = 400
	DbError            = 501
	RecordNotFound     = 404

	// 撮合相关 (1xxx)
	InvalidOrder      = 1001
	PolicyViolation   = 1002
	Unauthorized      = 1003
	MarketUnavailable = 1004
	InsufficientFund  = 1005
	EngineBusy        = 1006
	NotFound          = 1007
)

type CodeError struct {
	Code int    `json:"code"`
	Kind Kind   `json:"-"`
	Msg  string `json:"msg"`
}

func (e *CodeError) Error() string {
	return fmt.Sprintf("ErrCode:%d, Msg:%s", e.Code, e.Msg)
}

func New(code int, kind Kind, msg string) *CodeError {
	return &CodeError{Code: code, Kind: kind, Msg: msg}
}

func NewErrCode(code int) error {
	return &CodeError{Code: code, Kind: kindForCode(code), Msg: MapErrMsg(code)}
}

// As 从错误链里取出第一个 CodeError
func As(err error) (*CodeError, bool) {
	var ce *CodeError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// KindOf returns KindInternal for errors that carry no CodeError.
func KindOf(err error) Kind {
	if ce, ok := As(err); ok {
		return ce.Kind
	}
	return KindInternal
}

func MapErrMsg(code int) string {
	switch code {
	case ServerCommonError:
		return "internal error"
	case RequestParamsError:
		return "invalid params"
	case DbError:
		return "database busy"
	case RecordNotFound:
		return "record not found"
	case InvalidOrder:
		return "invalid order"
	case PolicyViolation:
		return "order rejected by policy"
	case Unauthorized:
		return "unauthorized"
	case MarketUnavailable:
		return "market unavailable"
	case InsufficientFund:
		return "insufficient balance or approval"
	case EngineBusy:
		return "engine busy"
	case NotFound:
		return "not found"
	default:
		return "unknown error"
	}
}

func kindForCode(code int) Kind {
	switch code {
	case RequestParamsError, InvalidOrder:
		return KindValidation
	case RecordNotFound, NotFound:
		return KindNotFound
	case PolicyViolation:
		return KindPolicy
	case Unauthorized:
		return KindAuthorization
	case MarketUnavailable:
		return KindMarketState
	case InsufficientFund:
		return KindResource
	case EngineBusy:
		return KindUnavailable
	default:
		return KindInternal
	}
}
