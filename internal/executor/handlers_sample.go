package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// RegisterSampleHandlers wires the two reference handlers used by the
// testable-property scenarios and local smoke testing: CreateUser (ported
// verbatim from original_source/.../sample/CreateUserHandler.java, including
// its payload-sniffing failure triggers) and PlaceOrder (new, supplementing
// the distilled spec with a money-bearing handler that exercises
// shopspring/decimal).
func RegisterSampleHandlers(r *Registry) {
	r.Register("CreateUser", createUserHandler)
	r.Register("PlaceOrder", placeOrderHandler)
}

// createUserHandler trips Permanent/Transient failures based on substrings
// in the raw payload, exactly as the original test fixture does, so the
// same JSON bodies used in the Java test suite still exercise both failure
// branches here.
func createUserHandler(ctx context.Context, payload string) (string, error) {
	if strings.Contains(payload, `"failPermanent"`) {
		return "", NewPermanent("Invariant broken")
	}
	if strings.Contains(payload, `"failTransient"`) {
		return "", NewTransient("Downstream timeout")
	}
	return `{"userId":"u-123"}`, nil
}

// placeOrderRequest is the minimal shape PlaceOrder needs out of its
// payload; the executor core never otherwise parses command payloads, so
// this parsing is strictly local to the handler.
type placeOrderRequest struct {
	OrderID  string `json:"orderId"`
	Quantity int    `json:"quantity"`
	Price    string `json:"price"`
}

// placeOrderHandler validates a decimal price/quantity pair and computes the
// order total, returning Permanent for a structurally invalid price and
// RetryableBusiness for a quantity of zero or less (a business precondition
// that a corrected resubmission could satisfy).
func placeOrderHandler(ctx context.Context, payload string) (string, error) {
	req, err := parsePlaceOrder(payload)
	if err != nil {
		return "", NewPermanent(err.Error())
	}

	price, err := decimal.NewFromString(req.Price)
	if err != nil {
		return "", NewPermanent(fmt.Sprintf("invalid price %q: %v", req.Price, err))
	}
	if req.Quantity <= 0 {
		return "", NewRetryableBusiness("quantity must be positive")
	}

	total := price.Mul(decimal.NewFromInt(int64(req.Quantity)))
	// Keep the price's decimal places, so 9.50 x 3 renders as 28.50.
	return fmt.Sprintf(`{"orderId":%q,"total":%q}`, req.OrderID, total.StringFixed(-price.Exponent())), nil
}

func parsePlaceOrder(payload string) (placeOrderRequest, error) {
	var req placeOrderRequest
	if err := json.Unmarshal([]byte(payload), &req); err != nil {
		return placeOrderRequest{}, fmt.Errorf("malformed PlaceOrder payload: %w", err)
	}
	return req, nil
}
