package faresdk

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ID is an opaque backend identifier. Some endpoints send numbers, others
// strings; both decode into the same type.
type ID string

func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}

	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("faresdk: id must be a string or number: %w", err)
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string { return string(id) }

// ============================================================================
// Authentication
// ============================================================================

// Credentials are the login form fields.
type Credentials struct {
	CPF      string `json:"cpf"`
	Password string `json:"senha"`
}

// Profile is the user record returned by the backend. Raw holds the
// record exactly as received so it can be persisted without loss.
type Profile struct {
	ID    ID     `json:"id,omitempty"`
	Name  string `json:"nome"`
	CPF   string `json:"cpf,omitempty"`
	Email string `json:"email,omitempty"`
	Role  string `json:"perfil"`

	Raw json.RawMessage `json:"-"`
}

// ParseProfile decodes a raw user record and keeps the raw bytes.
func ParseProfile(raw []byte) (Profile, error) {
	var p Profile
	if err := json.Unmarshal(raw, &p); err != nil {
		return Profile{}, fmt.Errorf("failed to decode profile: %w", err)
	}
	p.Raw = append(json.RawMessage(nil), raw...)
	return p, nil
}

// LoginResponse is the authentication endpoint answer.
type LoginResponse struct {
	Token   string
	Profile Profile
}

// ============================================================================
// Payments
// ============================================================================

// PaymentStatus is the lifecycle state of a payment intent.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentApproved  PaymentStatus = "approved"
	PaymentCancelled PaymentStatus = "cancelled"
	PaymentExpired   PaymentStatus = "expired"
	PaymentFailed    PaymentStatus = "failed"
)

// NormalizePaymentStatus maps the spellings the payment provider and the
// backend use onto the canonical values. Anything unknown is pending.
func NormalizePaymentStatus(s string) PaymentStatus {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "approved", "aprovado", "paid", "pago":
		return PaymentApproved
	case "cancelled", "canceled", "cancelado":
		return PaymentCancelled
	case "expired", "expirado":
		return PaymentExpired
	case "failed", "rejected", "recusado", "falhou":
		return PaymentFailed
	default:
		return PaymentPending
	}
}

// Terminal reports whether no further transition is expected.
func (s PaymentStatus) Terminal() bool {
	switch s {
	case PaymentApproved, PaymentCancelled, PaymentExpired, PaymentFailed:
		return true
	}
	return false
}

// PaymentIntent is a server-issued PIX top-up request.
type PaymentIntent struct {
	ID        ID            `json:"id"`
	QRCode    string        `json:"qr_code,omitempty"`
	CopyPaste string        `json:"copia_e_cola,omitempty"`
	Status    PaymentStatus `json:"status"`
	ExpiresAt *time.Time    `json:"expira_em,omitempty"`
}

// DisplayCode is the payload a payer scans or pastes into their bank app.
func (p PaymentIntent) DisplayCode() string {
	if p.CopyPaste != "" {
		return p.CopyPaste
	}
	return p.QRCode
}

type createPixRequest struct {
	Amount json.Number `json:"valor"`
}

type paymentStatusResponse struct {
	ID     ID     `json:"id"`
	Status string `json:"status"`
}

// ============================================================================
// Boarding & wallet
// ============================================================================

// BoardingRequest asks the backend to validate a scanned boarding code.
type BoardingRequest struct {
	Code  string `json:"codigo"`
	BusID ID     `json:"onibus_id,omitempty"`
}

// BoardingResult is the backend's decision for a scanned code.
type BoardingResult struct {
	Approved  bool    `json:"aprovado"`
	Message   string  `json:"mensagem,omitempty"`
	Passenger string  `json:"passageiro,omitempty"`
	Fare      float64 `json:"tarifa,omitempty"`
	Balance   float64 `json:"saldo,omitempty"`
	FreeFare  bool    `json:"gratuidade,omitempty"`
}

// Wallet is the passenger's stored balance.
type Wallet struct {
	Balance   float64    `json:"saldo"`
	FreeFare  bool       `json:"gratuidade,omitempty"`
	UpdatedAt *time.Time `json:"atualizado_em,omitempty"`
}

// ============================================================================
// Administration DTOs
// ============================================================================

type Bus struct {
	ID       ID     `json:"id"`
	Plate    string `json:"placa"`
	Model    string `json:"modelo,omitempty"`
	Capacity int    `json:"capacidade,omitempty"`
	Active   bool   `json:"ativo"`
}

type Route struct {
	ID          ID      `json:"id"`
	Name        string  `json:"nome"`
	Origin      string  `json:"origem,omitempty"`
	Destination string  `json:"destino,omitempty"`
	Fare        float64 `json:"tarifa,omitempty"`
}

type Driver struct {
	ID      ID     `json:"id"`
	Name    string `json:"nome"`
	CPF     string `json:"cpf,omitempty"`
	License string `json:"cnh,omitempty"`
}

type Conductor struct {
	ID   ID     `json:"id"`
	Name string `json:"nome"`
	CPF  string `json:"cpf,omitempty"`
}

// ElderlyCard is a free-fare card issued to a senior citizen.
type ElderlyCard struct {
	ID         ID     `json:"id"`
	Number     string `json:"numero,omitempty"`
	Name       string `json:"nome"`
	CPF        string `json:"cpf"`
	BirthDate  string `json:"data_nascimento,omitempty"`
	IssuedAt   string `json:"emitida_em,omitempty"`
	ValidUntil string `json:"validade,omitempty"`
}

// IssueElderlyCardRequest is the issuance form.
type IssueElderlyCardRequest struct {
	Name      string `json:"nome"`
	CPF       string `json:"cpf"`
	BirthDate string `json:"data_nascimento"`
}

// ReportRow is an opaque report line; columns vary per report.
type ReportRow map[string]any
