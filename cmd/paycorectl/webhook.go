package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"paycore/internal/domain"
	"paycore/pkg/payment"
)

// fakeNotification is what a provider would report about one charge.
type fakeNotification struct {
	Provider   domain.Provider
	ExternalID string
	OrderID    string
	Status     string
	Amount     decimal.Decimal
	Currency   string
	Secret     string
	Now        time.Time
}

// build renders n in the provider's wire format and signs it the way the provider does.
func (n fakeNotification) build() (payment.WebhookRequest, error) {
	req := payment.WebhookRequest{Header: http.Header{}, Query: url.Values{}}
	var doc any
	switch n.Provider {
	case domain.ProviderCard:
		kind, paymentStatus, status := cardEvent(n.Status)
		doc = map[string]any{
			"id":     "evt_" + uuid.NewString(),
			"object": "event",
			"type":   kind,
			"data": map[string]any{"object": map[string]any{
				"id":                  n.ExternalID,
				"object":              "checkout.session",
				"client_reference_id": n.OrderID,
				"payment_status":      paymentStatus,
				"status":              status,
				"amount_total":        n.Amount.Shift(2).IntPart(),
				"currency":            strings.ToLower(n.Currency),
			}},
		}
	case domain.ProviderTabby:
		doc = map[string]any{
			"id":       n.ExternalID,
			"status":   strings.ToUpper(n.Status),
			"amount":   n.Amount.StringFixed(2),
			"currency": n.Currency,
			"order":    map[string]any{"reference_id": n.OrderID},
		}
	case domain.ProviderTamara:
		doc = map[string]any{
			"order_id":           n.ExternalID,
			"order_reference_id": n.OrderID,
			"order_status":       strings.ToLower(n.Status),
		}
	case domain.ProviderInvoice:
		doc = map[string]any{
			"transactionNo":       n.ExternalID,
			"merchantOrderNumber": n.OrderID,
			"orderStatus":         n.Status,
			"amount":              json.Number(n.Amount.StringFixed(2)),
		}
	default:
		return req, fmt.Errorf("%s does not send webhooks", n.Provider)
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return req, err
	}
	req.Body = body
	if n.Secret == "" {
		return req, nil
	}

	switch n.Provider {
	case domain.ProviderCard:
		ts := strconv.FormatInt(n.Now.Unix(), 10)
		sig := payment.Sign(n.Secret, []byte(ts+"."+string(body)))
		req.Header.Set("Stripe-Signature", "t="+ts+",v1="+sig)
	case domain.ProviderTamara:
		tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(n.Now),
			ExpiresAt: jwt.NewNumericDate(n.Now.Add(5 * time.Minute)),
			Issuer:    "Tamara",
		}).SignedString([]byte(n.Secret))
		if err != nil {
			return req, err
		}
		req.Query.Set("tamaraToken", tok)
	default:
		req.Header.Set(payment.SignatureHeader, payment.Sign(n.Secret, body))
	}
	return req, nil
}

// cardEvent maps a simple outcome word onto checkout session event fields.
func cardEvent(status string) (kind, paymentStatus, sessionStatus string) {
	switch strings.ToLower(status) {
	case "failed":
		return "checkout.session.async_payment_failed", "unpaid", "complete"
	case "expired":
		return "checkout.session.expired", "unpaid", "expired"
	case "pending":
		return "checkout.session.completed", "unpaid", "complete"
	}
	return "checkout.session.completed", "paid", "complete"
}

func webhookCmd() *cobra.Command {
	var (
		n       fakeNotification
		amount  string
		baseURL string
		dryRun  bool
	)
	cmd := &cobra.Command{
		Use:   "webhook <provider>",
		Short: "Send a signed provider notification to a running server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, ok := domain.ParseProvider(args[0])
			if !ok {
				return fmt.Errorf("unknown provider %q", args[0])
			}
			amt, err := decimal.NewFromString(amount)
			if err != nil {
				return fmt.Errorf("amount: %w", err)
			}
			n.Provider, n.Amount, n.Now = p, amt, time.Now()
			req, err := n.build()
			if err != nil {
				return err
			}

			target := strings.TrimRight(baseURL, "/") + "/api/v1/payments/" + string(p) + "/webhook"
			if len(req.Query) > 0 {
				target += "?" + req.Query.Encode()
			}
			out := cmd.OutOrStdout()
			if dryRun {
				fmt.Fprintf(out, "POST %s\n", target)
				for k, v := range req.Header {
					fmt.Fprintf(out, "%s: %s\n", k, strings.Join(v, ","))
				}
				fmt.Fprintf(out, "\n%s\n", req.Body)
				return nil
			}

			httpReq, err := http.NewRequestWithContext(cmd.Context(), http.MethodPost, target, bytes.NewReader(req.Body))
			if err != nil {
				return err
			}
			httpReq.Header = req.Header
			httpReq.Header.Set("Content-Type", "application/json")
			resp, err := (&http.Client{Timeout: 15 * time.Second}).Do(httpReq)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			respBody, _ := io.ReadAll(resp.Body)
			fmt.Fprintf(out, "%s\n%s\n", resp.Status, respBody)
			if resp.StatusCode >= 300 {
				return fmt.Errorf("server answered %s", resp.Status)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&n.ExternalID, "id", "", "Provider transaction id of the intent")
	f.StringVar(&n.OrderID, "order", "", "Order id")
	f.StringVar(&n.Status, "status", "paid", "Provider status to report")
	f.StringVar(&n.Currency, "currency", "SAR", "Currency")
	f.StringVar(&n.Secret, "secret", "", "Webhook secret; empty sends an unsigned notification")
	f.StringVar(&amount, "amount", "0", "Amount the provider reports")
	f.StringVar(&baseURL, "url", "http://localhost:8099", "Server base URL")
	f.BoolVar(&dryRun, "dry-run", false, "Print the request instead of sending it")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}
