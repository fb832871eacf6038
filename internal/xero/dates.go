package xero

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the calendar date format used in outbound payloads.
const DateLayout = "2006-01-02"

// ParseMSDate parses the legacy remote date encoding "/Date(<epoch-ms>+tz)/".
// The timezone suffix is ignored; the epoch value is UTC. Returns false for
// anything that does not match.
func ParseMSDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "/Date(") || !strings.HasSuffix(s, ")/") {
		return time.Time{}, false
	}
	inner := s[len("/Date(") : len(s)-len(")/")]
	if inner == "" || inner[0] == '+' {
		return time.Time{}, false
	}

	// Strip a trailing +hhmm / -hhmm offset; the epoch is already UTC.
	if i := strings.IndexAny(inner[1:], "+-"); i >= 0 {
		inner = inner[:i+1]
	}

	ms, err := strconv.ParseInt(inner, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.UnixMilli(ms).UTC(), true
}

// FormatDate renders a calendar date for outbound payloads.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// WhereVoidedSince builds the query filter for invoices voided on or after
// the given day.
func WhereVoidedSince(day time.Time) string {
	return fmt.Sprintf("Status==%q AND Date >= DateTime(%d, %d, %d)",
		string(InvoiceVoided), day.Year(), int(day.Month()), day.Day())
}

// WherePaymentsForInvoice builds the query filter for payments applied to an
// invoice.
func WherePaymentsForInvoice(invoiceID string) string {
	return fmt.Sprintf("Invoice.InvoiceID==Guid(%q)", invoiceID)
}
