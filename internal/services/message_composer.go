package services

import (
	"fmt"
	"net/url"
	"strings"

	"dairy-billing/internal/models"
)

const summaryRule = "━━━━━━━━━━━━━━━━━━"

// ComposeBill renders the monthly bill text. It is a pure function of its
// inputs and is shared by live sending and the exported review sheets.
func ComposeBill(c models.Customer, p models.Period, t models.Totals, profile models.BusinessProfile) string {
	name := c.Name
	if name == "" {
		name = "Customer"
	}
	mon := strings.ToUpper(p.Month.String()[:3])

	lines := []string{
		fmt.Sprintf("🥛 %s - Monthly Bill", profile.BusinessName),
		"",
		fmt.Sprintf("Dear %s,", name),
		"",
		fmt.Sprintf("🆔 Customer ID: %s", c.ID),
		fmt.Sprintf("📅 Period: 01 %s %d - %02d %s %d", mon, p.Year, p.Days(), mon, p.Year),
		"",
		"📊 Delivery Summary:",
		summaryRule,
		fmt.Sprintf("🥛 Total Milk: %.2f Liters", t.Quantity),
		fmt.Sprintf("💰 Amount Due: ₹%.2f", t.Amount),
		summaryRule,
		"",
		fmt.Sprintf("📞 For queries: %s", profile.ContactNumber),
		fmt.Sprintf("💳 Pay via: %s", profile.PaymentInfo),
		"",
		"Thank you! 🙏",
	}
	return strings.Join(lines, "\n")
}

// WhatsAppWebLink opens a prefilled chat in WhatsApp Web. phone must already be normalized.
func WhatsAppWebLink(phone, text string) string {
	return fmt.Sprintf("https://web.whatsapp.com/send?phone=%s&text=%s", phone, strings.ReplaceAll(url.QueryEscape(text), "+", "%20"))
}
