package errors

// ErrorCode represents a unique error code for identifying different error types.
type ErrorCode int

const (
	// General errors (1-99)
	ErrCodeUnknown ErrorCode = 1

	// Validation errors (100-199)
	ErrCodeInvalidParameter     ErrorCode = 100
	ErrCodeInvalidConfiguration ErrorCode = 101
	ErrCodeInvalidOrder         ErrorCode = 102
	ErrCodeInvalidQuantity      ErrorCode = 103
	ErrCodeInvalidPrice         ErrorCode = 104
	ErrCodeInvalidLimits        ErrorCode = 105
	ErrCodeInvalidTransition    ErrorCode = 106
	ErrCodeOrderImmutable       ErrorCode = 107
	ErrCodePositionSignFlip     ErrorCode = 108
	ErrCodePositionZeroQuantity ErrorCode = 109
	ErrCodeWrongDirection       ErrorCode = 110

	// Trading-capacity errors (200-299): recoverable, caller decides skip vs abort
	ErrCodeInsufficientCapital ErrorCode = 200
	ErrCodeInsufficientShares  ErrorCode = 201
	ErrCodePositionNotFound    ErrorCode = 202

	// Risk-policy rejections (300-399): trade blocked by configured limits
	ErrCodeRiskPositionSize  ErrorCode = 300
	ErrCodeRiskConcentration ErrorCode = 301
	ErrCodeRiskDrawdown      ErrorCode = 302
	ErrCodeRiskCashReserve   ErrorCode = 303
	ErrCodeRiskLeverage      ErrorCode = 304

	// Data-integrity violations (400-499): always fatal
	ErrCodeLookAheadBias ErrorCode = 400

	// Statistical-input errors (500-599)
	ErrCodeEmptySeries      ErrorCode = 500
	ErrCodeSeriesMismatch   ErrorCode = 501
	ErrCodeZeroVariance     ErrorCode = 502
	ErrCodeInsufficientData ErrorCode = 503

	// Execution errors (600-699)
	ErrCodeMarketClosed      ErrorCode = 600
	ErrCodeOrderNotTriggered ErrorCode = 601
	ErrCodeFillFailed        ErrorCode = 602

	// Backtest errors (700-799)
	ErrCodeBacktestConfigError ErrorCode = 700
	ErrCodeBacktestNoStrategy  ErrorCode = 701
	ErrCodeBacktestNoData      ErrorCode = 702
	ErrCodeDataNotFound        ErrorCode = 703
	ErrCodeQueryFailed         ErrorCode = 704
	ErrCodeSnapshotCorrupt     ErrorCode = 705
)

// IsCapacityError reports whether err belongs to the recoverable
// trading-capacity family (insufficient funds/shares, missing position).
func IsCapacityError(err error) bool {
	code := GetCode(err)

	return code >= 200 && code < 300
}

// IsRiskRejection reports whether err is a risk-policy rejection.
func IsRiskRejection(err error) bool {
	code := GetCode(err)

	return code >= 300 && code < 400
}

// IsLookAheadBias reports whether err is a data-integrity violation caused by
// serving market data from after the simulation cursor.
func IsLookAheadBias(err error) bool {
	return GetCode(err) == ErrCodeLookAheadBias
}
