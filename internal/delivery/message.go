package delivery

import (
	"fmt"
	"strings"

	"github.com/huisjacht/huisjacht/internal/chattransport"
	"github.com/huisjacht/huisjacht/internal/listing"
)

// renderMessage builds the notification text and the two inline buttons:
// a copy-to-clipboard reaction button and a link to the listing.
func renderMessage(l *listing.Listing) (text string, leadImage string, buttons []chattransport.Button) {
	var b strings.Builder
	fmt.Fprintf(&b, "*%s*\n", escapeMarkdown(l.Title))
	if l.Neighborhood != "" {
		fmt.Fprintf(&b, "%s, %s\n", escapeMarkdown(l.Address), escapeMarkdown(l.Neighborhood))
	} else {
		fmt.Fprintf(&b, "%s\n", escapeMarkdown(l.Address))
	}
	fmt.Fprintf(&b, "%s\n", l.City)
	fmt.Fprintf(&b, "\n💰 %s", priceLine(l))
	if l.Rooms > 0 {
		fmt.Fprintf(&b, " · 🚪 %d rooms", l.Rooms)
	}
	if l.LivingAreaM2 > 0 {
		fmt.Fprintf(&b, " · 📐 %d m²", l.LivingAreaM2)
	}
	if l.EnergyLabel != "" {
		fmt.Fprintf(&b, " · ⚡ %s", l.EnergyLabel)
	}

	if len(l.Images) > 0 {
		leadImage = l.Images[0]
	}

	buttons = []chattransport.Button{
		{Text: "📋 Copy address", Data: fmt.Sprintf("copy:%d", l.ID)},
		{Text: "🗺️ Open listing", URL: l.URL},
	}

	return b.String(), leadImage, buttons
}

func priceLine(l *listing.Listing) string {
	period := "month"
	if l.PricePeriod == listing.PeriodWeek {
		period = "week"
	}
	if l.Price != "" {
		return l.Price
	}
	return fmt.Sprintf("€%d/%s", l.PriceNumeric, period)
}

// escapeMarkdown neutralizes Telegram's Markdown special characters so an
// address containing "_" or "*" doesn't break message formatting.
func escapeMarkdown(s string) string {
	replacer := strings.NewReplacer("_", "\\_", "*", "\\*", "[", "\\[", "`", "\\`")
	return replacer.Replace(s)
}
