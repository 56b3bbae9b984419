package telegram

import (
	"fmt"
	"strings"

	"dompet/models"
	"dompet/pkg/expense"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Reply texts. Bot users see these verbatim.
const (
	replyNoMessage      = "No message found in update"
	replyNoUsername     = "Please set a Telegram username in your profile settings to use this bot."
	replyUserNotFound   = "User not found. Please register first."
	replyClientNotFound = "Client not found."
	replyAddFormat      = "Invalid format. Use: /add <amount> <category> <note>"
	replyBadAmount      = "Invalid amount. Please provide a valid number."
	replyAddFailed      = "Error adding expense. Please try again."
	replySummaryFailed  = "Error getting summary. Please try again."
	replyUnknown        = "Unknown command. Type /help for available commands."
	replyRateLimited    = "Too many commands. Please wait a minute and try again."

	errNoBotToken = "Bot token is not configured for this client."
)

const helpText = `🤖 **Expense Tracker Bot Commands:**

📝 **Add Expense:**
/add <amount> <category> <note>
Example: /add 15000 food nasi goreng

📊 **Get Summary:**
/summary - Monthly summary

📂 **Categories:**
• food, makan
• transport, transportasi
• entertainment, hiburan
• shopping, belanja
• health, kesehatan
• education, pendidikan
• utilities, tagihan
• other, lainnya

❓ **Help:**
/help - Show this message`

// synonyms maps lowercase English and Indonesian words to categories.
var synonyms = map[string]models.Category{
	"food":          models.CategoryFood,
	"makan":         models.CategoryFood,
	"transport":     models.CategoryTransport,
	"transportasi":  models.CategoryTransport,
	"entertainment": models.CategoryEntertainment,
	"hiburan":       models.CategoryEntertainment,
	"shopping":      models.CategoryShopping,
	"belanja":       models.CategoryShopping,
	"health":        models.CategoryHealth,
	"kesehatan":     models.CategoryHealth,
	"education":     models.CategoryEducation,
	"pendidikan":    models.CategoryEducation,
	"utilities":     models.CategoryUtilities,
	"tagihan":       models.CategoryUtilities,
	"other":         models.CategoryOther,
	"lainnya":       models.CategoryOther,
}

// MapCategory resolves a chat word to a category, other when unknown.
func MapCategory(word string) models.Category {
	if c, ok := synonyms[strings.ToLower(strings.TrimSpace(word))]; ok {
		return c
	}
	return models.CategoryOther
}

// command splits text into the lowercase command and its arguments. A
// trailing @botname on the command is dropped.
func command(text string) (string, []string) {
	parts := strings.Fields(text)
	if len(parts) == 0 {
		return "", nil
	}
	cmd := strings.ToLower(parts[0])
	if at := strings.IndexByte(cmd, '@'); at > 0 {
		cmd = cmd[:at]
	}
	return cmd, parts[1:]
}

var printer = message.NewPrinter(language.Indonesian)

// formatNumber groups digits the Indonesian way, 15000 as 15.000.
func formatNumber(n int64) string {
	return printer.Sprintf("%d", n)
}

func formatSummary(s *expense.Summary) string {
	var b strings.Builder
	b.WriteString("📊 **Monthly Summary**\n")
	fmt.Fprintf(&b, "💰 Total: Rp %s\n", formatNumber(s.Total))
	fmt.Fprintf(&b, "🧾 Transactions: %d\n\n", s.Count)
	b.WriteString("📂 **Breakdown by Category:**\n")
	for _, item := range s.Breakdown {
		fmt.Fprintf(&b, "• %s: Rp %s (%d transactions)\n", item.Category, formatNumber(item.Total), item.Count)
	}
	return b.String()
}
