package notionsync

import (
	"time"

	"github.com/habahaba/roundup-savings/internal/domain"
	"github.com/jomei/notionapi"
)

// Property names of the Notion savings journal database.
const (
	PropTransactionID = "Transaction ID"
	PropUser          = "User"
	PropKind          = "Kind"
	PropStatus        = "Status"
	PropAmountSpent   = "Amount Spent"
	PropRoundedTo     = "Rounded To"
	PropSaved         = "Saved"
	PropCurrency      = "Currency"
	PropRationale     = "Rationale"
	PropSource        = "Decision Source"
	PropReference     = "Reference"
	PropCreated       = "Created"
	PropUpdated       = "Updated"
)

// notionTextLimit is the maximum length of one rich text item.
const notionTextLimit = 2000

func richText(s string) []notionapi.RichText {
	if len(s) > notionTextLimit {
		s = s[:notionTextLimit]
	}
	return []notionapi.RichText{
		{
			Type: notionapi.ObjectTypeText,
			Text: &notionapi.Text{
				Content: s,
			},
		},
	}
}

func dateProp(t time.Time) notionapi.DateProperty {
	d := notionapi.Date(t)
	return notionapi.DateProperty{
		Date: &notionapi.DateObject{Start: &d},
	}
}

// TransactionToNotionProperties converts a savings record to the page
// properties of the journal database. Withdrawals carry a negative Saved.
func TransactionToNotionProperties(tx domain.Transaction) notionapi.Properties {
	props := notionapi.Properties{
		PropTransactionID: notionapi.TitleProperty{
			Title: richText(tx.ID),
		},
		PropUser: notionapi.RichTextProperty{
			RichText: richText(tx.UserID),
		},
		PropKind: notionapi.SelectProperty{
			Select: notionapi.Option{Name: string(tx.Kind)},
		},
		PropStatus: notionapi.SelectProperty{
			Select: notionapi.Option{Name: string(tx.Status)},
		},
		PropAmountSpent: notionapi.NumberProperty{
			Number: tx.AmountSpent.InexactFloat64(),
		},
		PropRoundedTo: notionapi.NumberProperty{
			Number: tx.RoundedTo.InexactFloat64(),
		},
		PropSaved: notionapi.NumberProperty{
			Number: tx.AmountSaved.InexactFloat64(),
		},
		PropCurrency: notionapi.SelectProperty{
			Select: notionapi.Option{Name: domain.Currency},
		},
		PropCreated: dateProp(tx.CreatedAt),
		PropUpdated: dateProp(tx.UpdatedAt),
	}

	if tx.Rationale != "" {
		props[PropRationale] = notionapi.RichTextProperty{
			RichText: richText(tx.Rationale),
		}
	}

	if tx.Source != "" {
		props[PropSource] = notionapi.SelectProperty{
			Select: notionapi.Option{Name: string(tx.Source)},
		}
	}

	if tx.Reference != "" {
		props[PropReference] = notionapi.RichTextProperty{
			RichText: richText(tx.Reference),
		}
	}

	return props
}

// extractTransactionID reads the title property of a journal page.
// Returns empty string if not found.
func extractTransactionID(page notionapi.Page) string {
	prop, ok := page.Properties[PropTransactionID]
	if !ok {
		return ""
	}
	switch p := prop.(type) {
	case *notionapi.TitleProperty:
		if len(p.Title) > 0 {
			return p.Title[0].PlainText
		}
	case notionapi.TitleProperty:
		if len(p.Title) > 0 {
			return p.Title[0].PlainText
		}
	}
	return ""
}
