package notify

import (
	"strconv"
	"strings"

	"shiksha/internal/types"
)

// Render substitutes {PLACEHOLDER} tokens in a message template with values
// from the recipient. Unknown placeholders are left in place so a typo in a
// template is visible in the delivered message rather than silently dropped.
//
// Supported placeholders: {STUDENT_NAME}, {PARENT_NAME}, {GRADE}, {SECTION},
// {AMOUNT}, {DUE_DATE}.
func Render(template string, r types.Recipient) string {
	replacer := strings.NewReplacer(
		"{STUDENT_NAME}", r.StudentName,
		"{PARENT_NAME}", r.ParentName,
		"{GRADE}", r.Grade,
		"{SECTION}", r.Section,
		"{AMOUNT}", formatAmount(r.AmountDue),
		"{DUE_DATE}", r.DueDate,
	)
	return replacer.Replace(template)
}

// formatAmount renders a rupee amount with two decimal places.
func formatAmount(amount float64) string {
	return strconv.FormatFloat(amount, 'f', 2, 64)
}
