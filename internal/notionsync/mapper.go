package notionsync

import (
	"crypto/sha256"
	"fmt"
	"strconv"

	"github.com/dvloznov/statement-converter/internal/domain"
	"github.com/jomei/notionapi"
)

// Property names of the target Notion database.
const (
	PropDescription   = "Description"
	PropDate          = "Date"
	PropRawDate       = "Statement Date"
	PropDebit         = "Debit"
	PropCredit        = "Credit"
	PropBalance       = "Balance"
	PropSourceFile    = "Source File"
	PropTransactionID = "Transaction ID"
)

// TransactionKey returns a stable identifier for tx built from every field,
// so exporting the same statement twice does not duplicate pages.
func TransactionKey(tx domain.Transaction) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%s\x00%s\x00%s\x00%s\x00%s",
		tx.Date, tx.Description, optional(tx.Debit), optional(tx.Credit),
		strconv.FormatFloat(tx.Balance, 'f', -1, 64), tx.SourceFile)
	return fmt.Sprintf("%x", h.Sum(nil))[:32]
}

func optional(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

// TransactionToNotionProperties converts a transaction to Notion properties:
// Description title, Date, Debit, Credit, Balance, Source File select and
// the Transaction ID used for deduplication. Dates the converter cannot parse
// go to Statement Date as text instead.
func TransactionToNotionProperties(tx domain.Transaction) notionapi.Properties {
	props := notionapi.Properties{
		PropDescription: notionapi.TitleProperty{
			Title: richText(tx.Description),
		},
		PropBalance: notionapi.NumberProperty{
			Number: tx.Balance,
		},
		PropTransactionID: notionapi.RichTextProperty{
			RichText: richText(TransactionKey(tx)),
		},
	}

	if t, ok := tx.ParsedDate(); ok {
		d := notionapi.Date(t)
		props[PropDate] = notionapi.DateProperty{
			Date: &notionapi.DateObject{Start: &d},
		}
	} else if tx.Date != "" {
		props[PropRawDate] = notionapi.RichTextProperty{
			RichText: richText(tx.Date),
		}
	}

	if tx.Debit != nil {
		props[PropDebit] = notionapi.NumberProperty{Number: *tx.Debit}
	}
	if tx.Credit != nil {
		props[PropCredit] = notionapi.NumberProperty{Number: *tx.Credit}
	}

	if tx.SourceFile != "" {
		props[PropSourceFile] = notionapi.SelectProperty{
			Select: notionapi.Option{Name: tx.SourceFile},
		}
	}

	return props
}

func richText(content string) []notionapi.RichText {
	return []notionapi.RichText{
		{
			Type: notionapi.ObjectTypeText,
			Text: &notionapi.Text{Content: content},
		},
	}
}

// extractTransactionID reads the Transaction ID property of a queried page.
// Returns empty string if not found.
func extractTransactionID(page notionapi.Page) string {
	if prop, ok := page.Properties[PropTransactionID]; ok {
		if rt, ok := prop.(*notionapi.RichTextProperty); ok {
			if len(rt.RichText) > 0 {
				return rt.RichText[0].PlainText
			}
		}
	}
	return ""
}
