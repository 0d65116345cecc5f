package xerrors

import (
	"errors"
	"fmt"
)

const (
	ErrCodeSuccess uint32 = 0 + iota
	ErrCodeOrdinary
	ErrCodeInvalidParams
	ErrCodeParse
	ErrCodeRange
	ErrCodeDomain
	ErrCodeApproximationInfeasible
	ErrCodeErrorBudgetInfeasible
	ErrCodeNoValidDecomposition
)

const (
	ErrCodeCache uint32 = 1000 + iota
	ErrCodeCacheEncode
	ErrCodeCacheDecode
	ErrCodeNotFoundResult
	ErrLast
)

var (
	ErrCommon        = New(ErrCodeOrdinary, "fxopgen error")
	ErrOverFlow      = New(ErrCodeOrdinary, "overflow")
	ErrInvalidParams = New(ErrCodeInvalidParams, "invalid parameters")

	ErrParse                   = New(ErrCodeParse, "function parse error")
	ErrRange                   = New(ErrCodeRange, "format range error")
	ErrDomain                  = New(ErrCodeDomain, "argument outside of function domain")
	ErrApproximationInfeasible = New(ErrCodeApproximationInfeasible, "approximation infeasible")
	ErrErrorBudgetInfeasible   = New(ErrCodeErrorBudgetInfeasible, "error budget infeasible")
	ErrNoValidDecomposition    = New(ErrCodeNoValidDecomposition, "no valid decomposition")

	ErrCache          = New(ErrCodeCache, "polynomial cache failure")
	ErrCacheEncode    = New(ErrCodeCacheEncode, "cache value encoding failed")
	ErrCacheDecode    = New(ErrCodeCacheDecode, "cache value decoding failed")
	ErrNotFoundResult = New(ErrCodeNotFoundResult, "not found result")

	ErrDivByZeroInterval = ErrDomain.Wrap(NewOrdinary("division by an interval containing zero"))
	ErrNegativeOutput    = ErrNoValidDecomposition.Wrap(NewOrdinary("function output can get negative"))
	ErrInputTooWide      = ErrInvalidParams.Wrap(NewOrdinary("input too wide for exhaustive evaluation"))
	ErrKeyCompromised    = ErrCache.Wrap(NewOrdinary("key is compromised"))
)

type XError interface {
	Code() uint32
	Cause() error
	Error() string
	Msg() string
	Wrap(error) XError
	Wrapf(string, ...any) XError
	Contains(XError) bool
	Equal(XError) bool
}

type xerror struct {
	code  uint32
	msg   string
	cause error
}

func New(code uint32, msg string) XError {
	return &xerror{
		code: code,
		msg:  msg,
	}
}

func NewOrdinary(msg string) XError {
	return &xerror{
		code: ErrCodeOrdinary,
		msg:  msg,
	}
}

func From(err error) XError {
	if err == nil {
		return nil
	}
	return NewOrdinary(err.Error())
}

// Cast returns err itself when it is an XError, as errgroup results are.
func Cast(err error) XError {
	if err == nil {
		return nil
	}
	if xerr, ok := err.(XError); ok {
		return xerr
	}
	return From(err)
}

func Wrap(err error, msg string) XError {
	return &xerror{
		code:  ErrCodeOrdinary,
		msg:   msg,
		cause: err,
	}
}

func (xerr *xerror) Code() uint32 {
	return xerr.code
}

func (xerr *xerror) Error() string {
	msg := xerr.msg

	if xerr.cause != nil {
		msg += "\n\t" + xerr.cause.Error()
	}

	return msg

}

func (xerr *xerror) Msg() string {
	return xerr.msg
}

func (xerr *xerror) Cause() error {
	return xerr.cause
}

func (xerr *xerror) Wrap(err error) XError {
	if xerr.cause != nil {
		if cerr, ok := xerr.cause.(*xerror); ok {
			return &xerror{
				code:  xerr.code,
				msg:   xerr.msg,
				cause: cerr.Wrap(err),
			}
		}
	}
	return &xerror{
		code:  xerr.code,
		msg:   xerr.msg,
		cause: err,
	}
}

func (xerr *xerror) Wrapf(format string, args ...any) XError {
	return xerr.Wrap(New(ErrCodeOrdinary, fmt.Sprintf(format, args...)))
}

func (xerr *xerror) Contains(other XError) bool {
	if xerr.code == other.Code() && xerr.msg == other.Msg() {
		return true
	} else if xerr.cause != nil {
		if _xerr, ok := xerr.cause.(*xerror); ok {
			return _xerr.Contains(other)
		} else {
			return errors.Is(xerr.cause, other)
		}
	}
	return false
}

func (xerr *xerror) Equal(other XError) bool {
	return xerr.code == other.Code()
}

// Is lets errors.Is match sentinel values anywhere in the cause chain.
func (xerr *xerror) Is(target error) bool {
	if other, ok := target.(XError); ok {
		return xerr.Contains(other)
	}
	return false
}
