package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kramwallet/backend/internal/money"
)

const (
	defaultPaymentFormURL = "https://yoomoney.ru/quickpay/confirm.xml"
	defaultHistoryAPIURL  = "https://yoomoney.ru/api/operation-history"
)

// QuickpayProvider polls the hosted quickpay payment form's
// operation-history API. Payments are matched purely by label.
type QuickpayProvider struct {
	receiver       string
	token          string
	paymentFormURL string
	historyAPIURL  string
	client         *http.Client
}

func NewQuickpayProvider(receiver, token string) *QuickpayProvider {
	return &QuickpayProvider{
		receiver:       receiver,
		token:          token,
		paymentFormURL: defaultPaymentFormURL,
		historyAPIURL:  defaultHistoryAPIURL,
		client:         &http.Client{Timeout: 15 * time.Second},
	}
}

func (p *QuickpayProvider) Live() bool { return true }

func (p *QuickpayProvider) PaymentURL(userID int64, amount decimal.Decimal, label string) string {
	params := url.Values{}
	params.Set("receiver", p.receiver)
	params.Set("quickpay-form", "donate")
	params.Set("sum", money.Format(amount))
	params.Set("label", label)
	params.Set("targets", fmt.Sprintf("Deposit for user %d", userID))
	params.Set("paymentType", "AC")
	return p.paymentFormURL + "?" + params.Encode()
}

func (p *QuickpayProvider) FindSuccessfulOperation(ctx context.Context, label string) (bool, error) {
	form := url.Values{}
	form.Set("label", label)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.historyAPIURL, strings.NewReader(form.Encode()))
	if err != nil {
		return false, fmt.Errorf("build operation-history request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.token)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("query operation-history: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("operation-history returned status %d", resp.StatusCode)
	}

	var body struct {
		Operations []struct {
			Status string `json:"status"`
			Label  string `json:"label"`
		} `json:"operations"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return false, fmt.Errorf("decode operation-history response: %w", err)
	}

	// The API already filters by label; the comparison guards against
	// a response echoing unrelated operations.
	for _, op := range body.Operations {
		if op.Label == label && op.Status == "success" {
			return true, nil
		}
	}
	return false, nil
}
