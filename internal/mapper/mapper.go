// Package mapper translates local records into remote ledger wire types.
// Mapping is pure and validation-first: a record that cannot be represented
// remotely yields a MappingError naming the offending field.
package mapper

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/nasirucode/xerosync/internal/store"
	"github.com/nasirucode/xerosync/internal/xero"
)

// MappingError reports a local record field that cannot be mapped.
type MappingError struct {
	Field  string
	Reason string
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("cannot map field %q: %s", e.Field, e.Reason)
}

// IsMappingError reports whether err is a MappingError.
func IsMappingError(err error) bool {
	var me *MappingError
	return errors.As(err, &me)
}

// AccountPolicy resolves ledger account codes for outbound payloads.
// Line codes come from the invoice line itself; bank codes are looked up in
// the account store by the payment's receiving account name. Both fall back
// to configured defaults.
type AccountPolicy struct {
	Accounts        store.AccountStore
	DefaultLineCode string
	DefaultBankCode string
}

// ResolveLineCode returns the account code for an invoice line.
func (p *AccountPolicy) ResolveLineCode(item store.InvoiceItem) string {
	if item.AccountCode != "" {
		return item.AccountCode
	}
	return p.DefaultLineCode
}

// ResolveBankCode returns the account code the payment is received into.
// Unknown account names fall back to the default bank code.
func (p *AccountPolicy) ResolveBankCode(ctx context.Context, pay *store.PaymentEntry) string {
	if p.Accounts != nil && pay.PaidTo != "" {
		acc, err := p.Accounts.GetAccount(ctx, pay.PaidTo)
		if err == nil && acc.Code != "" {
			return acc.Code
		}
	}
	return p.DefaultBankCode
}

// InvoiceToXero maps a local sales invoice to the remote payload.
// The invoice is always pushed as an authorised accounts-receivable invoice
// with tax-exclusive line amounts. The currency code is included only when
// it differs from the company base currency.
func InvoiceToXero(inv *store.SalesInvoice, contactID string, policy *AccountPolicy, baseCurrency string) (xero.Invoice, error) {
	if contactID == "" {
		return xero.Invoice{}, &MappingError{Field: "contact", Reason: "no linked remote contact"}
	}
	if len(inv.Items) == 0 {
		return xero.Invoice{}, &MappingError{Field: "items", Reason: "invoice has no lines"}
	}
	if inv.PostingDate.IsZero() {
		return xero.Invoice{}, &MappingError{Field: "posting_date", Reason: "posting date is not set"}
	}

	lines := make([]xero.LineItem, 0, len(inv.Items))
	for _, item := range inv.Items {
		line := xero.LineItem{
			Description: item.Description,
			Quantity:    formatAmount(item.Quantity),
			UnitAmount:  formatAmount(item.Rate),
			AccountCode: policy.ResolveLineCode(item),
		}
		if item.DiscountPct > 0 {
			line.DiscountRate = formatAmount(item.DiscountPct)
		}
		lines = append(lines, line)
	}

	out := xero.Invoice{
		Type:            "ACCREC",
		Contact:         &xero.ContactRef{ContactID: contactID},
		Status:          xero.InvoiceAuthorised,
		LineAmountTypes: "Exclusive",
		LineItems:       lines,
		InvoiceNumber:   inv.ID,
		DateString:      xero.FormatDate(inv.PostingDate),
	}
	if !inv.DueDate.IsZero() {
		out.DueDateString = xero.FormatDate(inv.DueDate)
	}
	if inv.Currency != "" && inv.Currency != baseCurrency {
		out.CurrencyCode = inv.Currency
	}
	return out, nil
}

// ContactToXero maps a local contact to the remote payload. The remote
// customer and supplier flags derive from the contact's party links, and the
// account number falls back to the contact name. A contact without name
// fields takes its account number, then its record id, as the remote name.
func ContactToXero(c *store.Contact) (xero.Contact, error) {
	name := strings.TrimSpace(strings.TrimSpace(c.FirstName) + " " + strings.TrimSpace(c.LastName))
	if name == "" {
		name = strings.TrimSpace(c.AccountNumber)
	}
	if name == "" {
		name = strings.TrimSpace(c.ID)
	}
	if name == "" {
		return xero.Contact{}, &MappingError{Field: "name", Reason: "contact has no name"}
	}

	accountNumber := c.AccountNumber
	if accountNumber == "" {
		accountNumber = name
	}

	out := xero.Contact{
		Name:          name,
		FirstName:     c.FirstName,
		LastName:      c.LastName,
		EmailAddress:  c.Email,
		AccountNumber: accountNumber,
		IsCustomer:    len(c.LinkedCustomers) > 0,
		IsSupplier:    len(c.LinkedSuppliers) > 0,
	}
	if c.Address != "" {
		out.Addresses = []xero.Address{{AddressType: "STREET", AddressLine1: c.Address}}
	}
	if c.Phone != "" {
		out.Phones = []xero.Phone{{PhoneType: "DEFAULT", PhoneNumber: c.Phone}}
	}
	return out, nil
}

// PaymentToXero maps a local payment entry to the remote payload. The
// invoice must already exist remotely.
func PaymentToXero(p *store.PaymentEntry, invoiceXeroID, bankCode string) (xero.Payment, error) {
	if invoiceXeroID == "" {
		return xero.Payment{}, &MappingError{Field: "invoice", Reason: "invoice has not been pushed to the remote ledger"}
	}
	if p.Amount <= 0 {
		return xero.Payment{}, &MappingError{Field: "amount", Reason: "payment amount must be positive"}
	}
	if p.PostingDate.IsZero() {
		return xero.Payment{}, &MappingError{Field: "posting_date", Reason: "posting date is not set"}
	}
	return xero.Payment{
		Invoice:   &xero.InvoiceRef{InvoiceID: invoiceXeroID},
		Account:   &xero.AccountRef{Code: bankCode},
		Date:      xero.FormatDate(p.PostingDate),
		Amount:    p.Amount,
		Reference: p.Reference,
	}, nil
}

// PaymentFromSnapshot derives the corrective local payment for a remote
// invoice snapshot: the remote paid amount minus what local submitted
// payments already record. Returns nil when nothing remains to record.
func PaymentFromSnapshot(inv *store.SalesInvoice, snapshot xero.Invoice, recorded float64, date time.Time) *store.PaymentEntry {
	remaining := snapshot.AmountPaid - recorded
	if remaining <= 0 {
		return nil
	}
	return &store.PaymentEntry{
		PaymentType: store.PaymentReceive,
		Party:       inv.Customer,
		InvoiceID:   inv.ID,
		Amount:      remaining,
		PostingDate: date,
		Reference:   snapshot.InvoiceNumber,
		Remarks:     "Recorded from remote ledger payment sync",
	}
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
