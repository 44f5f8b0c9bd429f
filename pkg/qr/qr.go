// Package qr decodes the payload a customer's wallet renders as a QR code.
package qr

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/chris/fuelpay/pkg/txerrors"
)

// DefaultName is used when the payload carries no customer name.
const DefaultName = "Customer"

// Vehicle identifies the customer's registered vehicle.
type Vehicle struct {
	Id           string `json:"id"`
	LicensePlate string `json:"licensePlate"`
	FuelType     string `json:"fuelType,omitempty"`
}

// Payload is the wallet-side QR content.
type Payload struct {
	UserId    string     `json:"userId"`
	WalletId  string     `json:"walletId"`
	Name      string     `json:"name,omitempty"`
	Vehicle   *Vehicle   `json:"vehicle,omitempty"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// Parse decodes and validates a QR payload. Payloads missing userId or
// walletId are rejected with txerrors.ErrValidation.
func Parse(data []byte) (*Payload, error) {
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, txerrors.Validationf("QR payload is not valid JSON: %v", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(p.Name) == "" {
		p.Name = DefaultName
	}
	return &p, nil
}

// Validate checks the required fields.
func (p *Payload) Validate() error {
	var missing []string
	if strings.TrimSpace(p.UserId) == "" {
		missing = append(missing, "userId")
	}
	if strings.TrimSpace(p.WalletId) == "" {
		missing = append(missing, "walletId")
	}
	if len(missing) > 0 {
		return txerrors.Validationf("missing required fields: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Encode renders the payload for a QR image.
func (p *Payload) Encode() ([]byte, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(p)
}
