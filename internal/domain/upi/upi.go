// Package upi turns a seller payment group into a scannable UPI payment
// request.
package upi

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"

	"github.com/go-faster/errors"

	"github.com/makehive/marketplace/internal/apperr"
	"github.com/makehive/marketplace/internal/domain/checkout"
	"github.com/makehive/marketplace/internal/domain/seller"
)

const (
	DefaultScheme   = "upi"
	DefaultCurrency = "INR"
)

// MissingPayoutError is returned when a seller cannot receive payments
// because its payout address is empty or malformed.
type MissingPayoutError struct {
	SellerID   string
	SellerName string
	Reason     string
}

func (e *MissingPayoutError) Error() string {
	reason := e.Reason
	if reason == "" {
		reason = "has no payout address configured"
	}
	if e.SellerName != "" {
		return fmt.Sprintf("seller %s (%s) %s", e.SellerName, e.SellerID, reason)
	}
	return fmt.Sprintf("seller %s %s", e.SellerID, reason)
}

// Kind classifies the error for API responses.
func (e *MissingPayoutError) Kind() apperr.Kind { return apperr.KindConfiguration }

// Renderer turns URI content into an image.
type Renderer interface {
	Render(ctx context.Context, content string) ([]byte, error)
}

// PaymentRequest is an encoded payment for one seller.
type PaymentRequest struct {
	URI string
	// QRCode is the rendered URI as a PNG data URI.
	QRCode string
}

// Encoder builds payment URIs and renders them.
type Encoder struct {
	Scheme   string
	Currency string
	Renderer Renderer
}

// NewEncoder creates an Encoder, applying defaults to empty settings.
func NewEncoder(scheme, currency string, r Renderer) *Encoder {
	if scheme == "" {
		scheme = DefaultScheme
	}
	if currency == "" {
		currency = DefaultCurrency
	}
	return &Encoder{Scheme: scheme, Currency: currency, Renderer: r}
}

// PaymentURI returns the payment deep link for g. The result depends only
// on g and the encoder settings.
func (e *Encoder) PaymentURI(g checkout.PaymentGroup) (string, error) {
	pa := strings.TrimSpace(g.PayeeAddress)
	if pa == "" {
		return "", &MissingPayoutError{SellerID: g.SellerID, SellerName: g.SellerName}
	}
	if !seller.ValidPayoutAddress(pa) {
		return "", &MissingPayoutError{
			SellerID:   g.SellerID,
			SellerName: g.SellerName,
			Reason:     "has a malformed payout address",
		}
	}

	var b strings.Builder
	b.WriteString(e.Scheme)
	b.WriteString("://pay?pa=")
	b.WriteString(pa)
	b.WriteString("&pn=")
	b.WriteString(escape(g.SellerName))
	b.WriteString("&am=")
	b.WriteString(g.Total.StringFixed(2))
	b.WriteString("&cu=")
	b.WriteString(e.Currency)
	return b.String(), nil
}

// Encode builds the payment URI for g and renders it as a QR code.
func (e *Encoder) Encode(ctx context.Context, g checkout.PaymentGroup) (*PaymentRequest, error) {
	uri, err := e.PaymentURI(g)
	if err != nil {
		return nil, err
	}
	img, err := e.Renderer.Render(ctx, uri)
	if err != nil {
		return nil, errors.Wrapf(err, "render qr for seller %s", g.SellerID)
	}
	return &PaymentRequest{
		URI:    uri,
		QRCode: "data:image/png;base64," + base64.StdEncoding.EncodeToString(img),
	}, nil
}

// escape percent-encodes s for a query value, using %20 for spaces since
// payment apps do not all decode '+'.
func escape(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
