package payments

import (
	"fmt"
	"strings"
)

// FailureCode is the normalised gateway failure taxonomy. Provider-specific
// codes and free text are mapped onto it once, at the point the failure is
// observed; everything downstream switches on the tag, never on substrings.
type FailureCode string

const (
	// FailureInsufficientFunds means the account or card lacked balance.
	FailureInsufficientFunds FailureCode = "insufficient_funds"
	// FailureCardDeclined means the issuer refused the charge.
	FailureCardDeclined FailureCode = "card_declined"
	// FailureUserCancelled means the customer dismissed the payment UI.
	FailureUserCancelled FailureCode = "user_cancelled"
	// FailureTimeout means the gateway or bank did not respond in time.
	FailureTimeout FailureCode = "timeout"
	// FailureInvalidCard means the card details failed validation.
	FailureInvalidCard FailureCode = "invalid_card"
	// FailureBankError means the issuing or acquiring bank failed the transaction.
	FailureBankError FailureCode = "bank_error"
	// FailureNetworkError means connectivity to the gateway broke mid-flow.
	FailureNetworkError FailureCode = "network_error"
	// FailureUPIUnavailable means the UPI app or PSP was unreachable.
	FailureUPIUnavailable FailureCode = "upi_unavailable"
	// FailureUPILimitExceeded means the UPI per-transaction or daily limit was hit.
	FailureUPILimitExceeded FailureCode = "upi_limit_exceeded"
	// FailureUnknown is the explicit fallback carrying the raw gateway code.
	FailureUnknown FailureCode = "unknown"
)

// FailureMessage is the user-facing rendering of a failure code.
type FailureMessage struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Action      string `json:"action"`
}

// GatewayError is a classified gateway failure. It keeps the raw code and
// message for support diagnosis alongside the normalised tag.
type GatewayError struct {
	Provider   string
	Code       FailureCode
	RawCode    string
	RawMessage string
}

func (e *GatewayError) Error() string {
	if e.RawCode != "" {
		return fmt.Sprintf("payments: %s failure %s (%s)", e.Provider, e.Code, e.RawCode)
	}
	return fmt.Sprintf("payments: %s failure %s", e.Provider, e.Code)
}

// NewGatewayError classifies a provider failure into the taxonomy.
func NewGatewayError(provider, rawCode, rawMessage string) *GatewayError {
	return &GatewayError{
		Provider:   strings.ToLower(strings.TrimSpace(provider)),
		Code:       ClassifyFailure(rawCode, rawMessage),
		RawCode:    strings.TrimSpace(rawCode),
		RawMessage: strings.TrimSpace(rawMessage),
	}
}

// ClassifyFailure maps a provider error code and free-text message onto the
// taxonomy. The code is authoritative when recognised; the message is only a
// fallback for gateways that emit prose instead of codes.
func ClassifyFailure(rawCode, rawMessage string) FailureCode {
	code := strings.ToUpper(strings.TrimSpace(rawCode))
	switch code {
	case "BAD_REQUEST_ERROR", "INVALID_CARD", "INVALID_CARD_NUMBER", "CARD_EXPIRED":
		return FailureInvalidCard
	case "PAYMENT_DECLINED", "CARD_DECLINED", "AUTHORIZATION_FAILED":
		return FailureCardDeclined
	case "INSUFFICIENT_FUNDS", "BALANCE_INSUFFICIENT":
		return FailureInsufficientFunds
	case "PAYMENT_CANCELLED", "USER_CANCELLED", "TRANSACTION_CANCELLED":
		return FailureUserCancelled
	case "TIMED_OUT", "TIMEOUT", "GATEWAY_TIMEOUT", "PAYMENT_PENDING_TIMEOUT":
		return FailureTimeout
	case "BANK_ERROR", "ISSUER_DOWN", "BANK_OFFLINE":
		return FailureBankError
	case "NETWORK_ERROR", "CONNECTION_ERROR":
		return FailureNetworkError
	case "UPI_APP_UNAVAILABLE", "PSP_UNAVAILABLE", "VPA_NOT_FOUND":
		return FailureUPIUnavailable
	case "UPI_LIMIT_EXCEEDED", "TRANSACTION_LIMIT_EXCEEDED":
		return FailureUPILimitExceeded
	}

	message := strings.ToLower(rawMessage)
	switch {
	case strings.Contains(message, "insufficient"):
		return FailureInsufficientFunds
	case strings.Contains(message, "declined"):
		return FailureCardDeclined
	case strings.Contains(message, "cancelled") || strings.Contains(message, "canceled"):
		return FailureUserCancelled
	case strings.Contains(message, "timeout") || strings.Contains(message, "timed out"):
		return FailureTimeout
	case strings.Contains(message, "invalid card") || strings.Contains(message, "expired"):
		return FailureInvalidCard
	case strings.Contains(message, "bank"):
		return FailureBankError
	case strings.Contains(message, "network"):
		return FailureNetworkError
	case strings.Contains(message, "upi"):
		return FailureUPIUnavailable
	}

	return FailureUnknown
}

// Message renders the user-facing {title, description, action} triple. The
// unknown fallback echoes the raw code so support can diagnose from the
// customer's screenshot.
func (e *GatewayError) Message() FailureMessage {
	switch e.Code {
	case FailureInsufficientFunds:
		return FailureMessage{
			Title:       "Insufficient funds",
			Description: "Your bank reported insufficient balance for this payment.",
			Action:      "Try a different payment method or add funds and retry.",
		}
	case FailureCardDeclined:
		return FailureMessage{
			Title:       "Card declined",
			Description: "Your bank declined the charge. No money was deducted.",
			Action:      "Contact your bank or try another card.",
		}
	case FailureUserCancelled:
		return FailureMessage{
			Title:       "Payment cancelled",
			Description: "You closed the payment window before completing the payment.",
			Action:      "Your cart is unchanged. Retry checkout when ready.",
		}
	case FailureTimeout:
		return FailureMessage{
			Title:       "Payment timed out",
			Description: "The bank did not respond in time. If money was deducted it will be auto-refunded.",
			Action:      "Check your bank statement before retrying.",
		}
	case FailureInvalidCard:
		return FailureMessage{
			Title:       "Invalid card details",
			Description: "The card number, expiry, or CVV failed validation.",
			Action:      "Re-check the card details and try again.",
		}
	case FailureBankError:
		return FailureMessage{
			Title:       "Bank error",
			Description: "Your bank could not process the transaction.",
			Action:      "Try again in a few minutes or use a different bank.",
		}
	case FailureNetworkError:
		return FailureMessage{
			Title:       "Network error",
			Description: "The connection to the payment gateway was interrupted.",
			Action:      "Check your connection and retry. No money was deducted.",
		}
	case FailureUPIUnavailable:
		return FailureMessage{
			Title:       "UPI unavailable",
			Description: "Your UPI app or provider is currently unreachable.",
			Action:      "Try another UPI app or a different payment method.",
		}
	case FailureUPILimitExceeded:
		return FailureMessage{
			Title:       "UPI limit exceeded",
			Description: "This payment exceeds your UPI transaction limit.",
			Action:      "Split the payment or use a card instead.",
		}
	default:
		description := "The payment failed and no money was deducted."
		if e.RawCode != "" {
			description = fmt.Sprintf("The payment failed and no money was deducted (code: %s).", e.RawCode)
		}
		return FailureMessage{
			Title:       "Payment failed",
			Description: description,
			Action:      "Retry the payment, or contact support quoting the code above.",
		}
	}
}
