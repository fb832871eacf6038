package mapper

import (
	"context"
	"testing"
	"time"

	"github.com/nasirucode/xerosync/internal/store"
	"github.com/nasirucode/xerosync/internal/store/memory"
	"github.com/nasirucode/xerosync/internal/xero"
)

func testPolicy() *AccountPolicy {
	return &AccountPolicy{DefaultLineCode: "200", DefaultBankCode: "880"}
}

func testInvoice() *store.SalesInvoice {
	return &store.SalesInvoice{
		ID:          "SINV-0001",
		Customer:    "Acme Ltd",
		Currency:    "USD",
		PostingDate: time.Date(2023, 5, 7, 0, 0, 0, 0, time.UTC),
		DueDate:     time.Date(2023, 6, 7, 0, 0, 0, 0, time.UTC),
		GrandTotal:  150,
		Outstanding: 150,
		Status:      store.InvoiceSubmitted,
		Items: []store.InvoiceItem{
			{Description: "Widget", Quantity: 3, Rate: 50, AccountCode: "400"},
			{Description: "Gadget", Quantity: 1, Rate: 0.5, DiscountPct: 10},
		},
	}
}

func TestInvoiceToXero(t *testing.T) {
	out, err := InvoiceToXero(testInvoice(), "contact-1", testPolicy(), "EUR")
	if err != nil {
		t.Fatalf("InvoiceToXero: %v", err)
	}

	if out.Type != "ACCREC" {
		t.Errorf("Type = %q, want ACCREC", out.Type)
	}
	if out.Status != xero.InvoiceAuthorised {
		t.Errorf("Status = %q, want AUTHORISED", out.Status)
	}
	if out.LineAmountTypes != "Exclusive" {
		t.Errorf("LineAmountTypes = %q, want Exclusive", out.LineAmountTypes)
	}
	if out.Contact == nil || out.Contact.ContactID != "contact-1" {
		t.Errorf("Contact = %+v", out.Contact)
	}
	if out.InvoiceNumber != "SINV-0001" {
		t.Errorf("InvoiceNumber = %q", out.InvoiceNumber)
	}
	if out.DateString != "2023-05-07" || out.DueDateString != "2023-06-07" {
		t.Errorf("dates = %q / %q", out.DateString, out.DueDateString)
	}
	if out.CurrencyCode != "USD" {
		t.Errorf("CurrencyCode = %q, want USD (differs from base)", out.CurrencyCode)
	}

	if len(out.LineItems) != 2 {
		t.Fatalf("lines = %d, want 2", len(out.LineItems))
	}
	first := out.LineItems[0]
	if first.Quantity != "3" || first.UnitAmount != "50" || first.AccountCode != "400" {
		t.Errorf("first line = %+v", first)
	}
	second := out.LineItems[1]
	if second.UnitAmount != "0.5" {
		t.Errorf("UnitAmount = %q, want 0.5", second.UnitAmount)
	}
	if second.AccountCode != "200" {
		t.Errorf("AccountCode = %q, want default 200", second.AccountCode)
	}
	if second.DiscountRate != "10" {
		t.Errorf("DiscountRate = %q, want 10", second.DiscountRate)
	}
}

func TestInvoiceToXeroBaseCurrencyOmitted(t *testing.T) {
	inv := testInvoice()
	inv.Currency = "EUR"
	out, err := InvoiceToXero(inv, "contact-1", testPolicy(), "EUR")
	if err != nil {
		t.Fatalf("InvoiceToXero: %v", err)
	}
	if out.CurrencyCode != "" {
		t.Errorf("CurrencyCode = %q, want empty for base currency", out.CurrencyCode)
	}
}

func TestInvoiceToXeroValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*store.SalesInvoice)
		noLink bool
		field  string
	}{
		{name: "missing contact", noLink: true, field: "contact"},
		{name: "no lines", mutate: func(i *store.SalesInvoice) { i.Items = nil }, field: "items"},
		{name: "no posting date", mutate: func(i *store.SalesInvoice) { i.PostingDate = time.Time{} }, field: "posting_date"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := testInvoice()
			if tt.mutate != nil {
				tt.mutate(inv)
			}
			contactID := "contact-1"
			if tt.noLink {
				contactID = ""
			}
			_, err := InvoiceToXero(inv, contactID, testPolicy(), "EUR")
			var me *MappingError
			if !IsMappingError(err) {
				t.Fatalf("err = %v, want MappingError", err)
			}
			me = err.(*MappingError)
			if me.Field != tt.field {
				t.Errorf("field = %q, want %q", me.Field, tt.field)
			}
		})
	}
}

func TestContactToXero(t *testing.T) {
	c := &store.Contact{
		ID:              "CONT-1",
		FirstName:       "Ada",
		LastName:        "Lovelace",
		Email:           "ada@example.com",
		Phone:           "+44 20 1234",
		Address:         "1 Analytical Way",
		LinkedCustomers: []string{"Acme Ltd"},
	}

	out, err := ContactToXero(c)
	if err != nil {
		t.Fatalf("ContactToXero: %v", err)
	}
	if out.Name != "Ada Lovelace" {
		t.Errorf("Name = %q", out.Name)
	}
	if out.AccountNumber != "Ada Lovelace" {
		t.Errorf("AccountNumber = %q, want fallback to name", out.AccountNumber)
	}
	if !out.IsCustomer || out.IsSupplier {
		t.Errorf("flags = customer %v supplier %v", out.IsCustomer, out.IsSupplier)
	}
	if len(out.Addresses) != 1 || out.Addresses[0].AddressType != "STREET" {
		t.Errorf("addresses = %+v", out.Addresses)
	}
	if len(out.Phones) != 1 || out.Phones[0].PhoneNumber != "+44 20 1234" {
		t.Errorf("phones = %+v", out.Phones)
	}

	// Explicit account number wins.
	c.AccountNumber = "ACC-9"
	out, _ = ContactToXero(c)
	if out.AccountNumber != "ACC-9" {
		t.Errorf("AccountNumber = %q, want ACC-9", out.AccountNumber)
	}

	// Without name fields the account number, then the record id, serves as
	// the remote name.
	out, err = ContactToXero(&store.Contact{ID: "CONT-2", AccountNumber: "ACC-2"})
	if err != nil || out.Name != "ACC-2" {
		t.Errorf("Name = %q, %v; want ACC-2", out.Name, err)
	}
	out, err = ContactToXero(&store.Contact{ID: "CONT-2"})
	if err != nil || out.Name != "CONT-2" {
		t.Errorf("Name = %q, %v; want CONT-2", out.Name, err)
	}

	// A contact with nothing to name it by cannot be mapped.
	if _, err := ContactToXero(&store.Contact{}); !IsMappingError(err) {
		t.Errorf("err = %v, want MappingError", err)
	}
}

func TestPaymentToXero(t *testing.T) {
	p := &store.PaymentEntry{
		ID:          "PE-1",
		Amount:      75,
		PostingDate: time.Date(2023, 5, 8, 0, 0, 0, 0, time.UTC),
		Reference:   "SINV-0001",
	}

	out, err := PaymentToXero(p, "xinv-1", "880")
	if err != nil {
		t.Fatalf("PaymentToXero: %v", err)
	}
	if out.Invoice.InvoiceID != "xinv-1" || out.Account.Code != "880" {
		t.Errorf("refs = %+v / %+v", out.Invoice, out.Account)
	}
	if out.Date != "2023-05-08" || out.Amount != 75 {
		t.Errorf("date/amount = %q / %v", out.Date, out.Amount)
	}

	if _, err := PaymentToXero(p, "", "880"); !IsMappingError(err) {
		t.Errorf("missing invoice link: err = %v, want MappingError", err)
	}
	if _, err := PaymentToXero(&store.PaymentEntry{PostingDate: p.PostingDate}, "xinv-1", "880"); !IsMappingError(err) {
		t.Errorf("zero amount: err = %v, want MappingError", err)
	}
}

func TestPaymentFromSnapshot(t *testing.T) {
	inv := testInvoice()
	date := time.Date(2023, 5, 9, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		paid     float64
		recorded float64
		want     float64
	}{
		{name: "partial payment", paid: 100, recorded: 40, want: 60},
		{name: "fully recorded", paid: 100, recorded: 100, want: 0},
		{name: "over-recorded", paid: 100, recorded: 120, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := xero.Invoice{InvoiceNumber: "SINV-0001", AmountPaid: tt.paid}
			entry := PaymentFromSnapshot(inv, snap, tt.recorded, date)
			if tt.want == 0 {
				if entry != nil {
					t.Fatalf("entry = %+v, want nil", entry)
				}
				return
			}
			if entry == nil {
				t.Fatal("entry = nil, want payment")
			}
			if entry.Amount != tt.want {
				t.Errorf("amount = %v, want %v", entry.Amount, tt.want)
			}
			if entry.PaymentType != store.PaymentReceive {
				t.Errorf("type = %q", entry.PaymentType)
			}
			if entry.InvoiceID != inv.ID || entry.Party != inv.Customer {
				t.Errorf("links = %q / %q", entry.InvoiceID, entry.Party)
			}
		})
	}
}

func TestResolveBankCode(t *testing.T) {
	accounts := memory.New()
	_ = accounts.SaveAccount(context.Background(), &store.Account{
		Name: "Main Bank - AC", Company: "AC", Type: store.AccountBank, Code: "091",
	})
	_ = accounts.SaveAccount(context.Background(), &store.Account{
		Name: "Petty Cash - AC", Company: "AC", Type: store.AccountCash,
	})

	policy := &AccountPolicy{Accounts: accounts, DefaultLineCode: "200", DefaultBankCode: "880"}

	tests := []struct {
		name   string
		paidTo string
		want   string
	}{
		{name: "known account with code", paidTo: "Main Bank - AC", want: "091"},
		{name: "known account without code", paidTo: "Petty Cash - AC", want: "880"},
		{name: "unknown account", paidTo: "Missing - AC", want: "880"},
		{name: "no receiving account", paidTo: "", want: "880"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := policy.ResolveBankCode(context.Background(), &store.PaymentEntry{PaidTo: tt.paidTo})
			if got != tt.want {
				t.Errorf("ResolveBankCode = %q, want %q", got, tt.want)
			}
		})
	}
}
