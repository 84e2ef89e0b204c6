package advisor

import (
	"fmt"
	"strings"

	"github.com/habahaba/roundup-savings/internal/domain"
	"github.com/shopspring/decimal"
)

const systemPrompt = "You are a financial advisor AI. Always respond with valid JSON only, no additional text."

// buildPrompt describes the spend, the user's profile and the rounding rules
// the answer has to respect.
func buildPrompt(amount decimal.Decimal, p domain.SpendingProfile) string {
	var b strings.Builder

	b.WriteString("You are a financial advisor AI helping Kenyan users save money through M-Pesa roundups.\n\n")

	b.WriteString("User's Spending Profile:\n")
	fmt.Fprintf(&b, "- Current transaction: KES %s\n", amount.String())
	fmt.Fprintf(&b, "- Average transaction: KES %s\n", p.AverageTransaction.StringFixed(0))
	fmt.Fprintf(&b, "- Total transactions: %d\n", p.Count)
	fmt.Fprintf(&b, "- Current savings rate: %s%%\n", p.SavingsRatePercent.StringFixed(2))
	fmt.Fprintf(&b, "- Total saved so far: KES %s\n\n", p.TotalSaved.String())

	fmt.Fprintf(&b, "Task: Recommend the optimal roundup amount for this KES %s transaction.\n\n", amount.String())

	b.WriteString("Rules:\n")
	b.WriteString("1. Roundup options: nearest 10, 50, or 100 KES\n")
	b.WriteString("2. For amounts under 100: round to nearest 10\n")
	b.WriteString("3. For amounts 100-500: round to nearest 50\n")
	b.WriteString("4. For amounts over 500: round to nearest 100, but cap savings at 100 KES to avoid discouraging users\n")
	b.WriteString("5. Consider user's spending capacity and current savings rate\n")
	b.WriteString("6. If savings rate is low (<5%), be more aggressive\n")
	b.WriteString("7. If transaction is unusual (much higher/lower than average), adjust accordingly\n")
	b.WriteString("8. roundTo must equal the transaction amount plus saved\n\n")

	b.WriteString("Respond in JSON format:\n")
	b.WriteString("{\n")
	b.WriteString("  \"roundTo\": <amount>,\n")
	b.WriteString("  \"saved\": <amount>,\n")
	b.WriteString("  \"reason\": \"<brief explanation in 1-2 sentences>\"\n")
	b.WriteString("}\n")
	b.WriteString("Do NOT wrap the response in code fences.\n")

	return b.String()
}
