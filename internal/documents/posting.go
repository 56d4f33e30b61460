package documents

import (
	"fmt"
	"sort"

	"github.com/mizan-books/mizan/internal/ledger"
	"github.com/mizan-books/mizan/internal/money"
	"github.com/mizan-books/mizan/internal/shared"
)

// PostingAccounts names the control accounts a document posting needs. The
// roles are configurable; the defaults come from app configuration.
type PostingAccounts struct {
	Receivable int64 // debited by invoices for the gross total
	Payable    int64 // credited by bills for the gross total
	OutputVAT  int64 // credited by invoices
	InputVAT   int64 // debited by bills
}

// postingRule describes which side each leg of a document posting takes.
// Keyed by kind rather than inferred from field presence.
type postingRule struct {
	sourceKind   ledger.SourceKind
	control      func(PostingAccounts) int64
	vat          func(PostingAccounts) int64
	controlDebit bool // control line side; item and VAT lines mirror it
}

var postingRules = map[Kind]postingRule{
	KindInvoice: {
		sourceKind:   ledger.SourceInvoice,
		control:      func(a PostingAccounts) int64 { return a.Receivable },
		vat:          func(a PostingAccounts) int64 { return a.OutputVAT },
		controlDebit: true,
	},
	KindBill: {
		sourceKind:   ledger.SourceBill,
		control:      func(a PostingAccounts) int64 { return a.Payable },
		vat:          func(a PostingAccounts) int64 { return a.InputVAT },
		controlDebit: false,
	},
}

// BuildPosting translates a document into a balanced journal posting: one
// control line for the gross total, one line per distinct item account for
// the summed net amounts, and one VAT line. Any rounding residual between
// per-line VAT and the document totals is folded into the VAT line so the
// entry balances exactly; it is never dropped or plugged elsewhere.
func BuildPosting(doc Document, accounts PostingAccounts) (ledger.PostingInput, error) {
	rule, ok := postingRules[doc.Kind]
	if !ok {
		return ledger.PostingInput{}, shared.Invalidf("documents: unknown kind %q", doc.Kind)
	}
	controlAccount := rule.control(accounts)
	vatAccount := rule.vat(accounts)
	if controlAccount == 0 || vatAccount == 0 {
		return ledger.PostingInput{}, shared.Invalidf("documents: posting accounts not configured for %s", doc.Kind)
	}

	grouped := make(map[int64]money.Money)
	order := make([]int64, 0, len(doc.Items))
	var itemSum money.Money
	for _, item := range doc.Items {
		if _, seen := grouped[item.AccountID]; !seen {
			order = append(order, item.AccountID)
		}
		grouped[item.AccountID] = grouped[item.AccountID].Add(item.LineTotal)
		itemSum = itemSum.Add(item.LineTotal)
	}
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })

	// The VAT leg absorbs the entire difference between the gross total and
	// the grouped net lines, which is per-line VAT plus any residual.
	vatLeg := doc.Total.Sub(itemSum)
	if vatLeg.IsNegative() {
		return ledger.PostingInput{}, fmt.Errorf(
			"documents: %s %s nets %s above its total %s: %w",
			doc.Kind, doc.Number, itemSum, doc.Total, shared.ErrUnbalancedEntry)
	}

	contact := doc.ContactID
	lines := make([]ledger.PostingLine, 0, len(order)+2)
	control := ledger.PostingLine{
		AccountID:   controlAccount,
		Description: fmt.Sprintf("%s %s", doc.Kind, doc.Number),
		ContactID:   &contact,
	}
	if rule.controlDebit {
		control.Debit = doc.Total
	} else {
		control.Credit = doc.Total
	}
	lines = append(lines, control)

	for _, accountID := range order {
		line := ledger.PostingLine{
			AccountID:   accountID,
			Description: fmt.Sprintf("%s %s items", doc.Kind, doc.Number),
		}
		if rule.controlDebit {
			line.Credit = grouped[accountID]
		} else {
			line.Debit = grouped[accountID]
		}
		lines = append(lines, line)
	}

	if vatLeg != 0 {
		line := ledger.PostingLine{
			AccountID:   vatAccount,
			Description: fmt.Sprintf("%s %s VAT", doc.Kind, doc.Number),
		}
		if rule.controlDebit {
			line.Credit = vatLeg
		} else {
			line.Debit = vatLeg
		}
		lines = append(lines, line)
	}

	return ledger.PostingInput{
		Date:        doc.Date,
		Description: fmt.Sprintf("%s %s", doc.Kind, doc.Number),
		Source:      ledger.Source{Kind: rule.sourceKind, Ref: doc.ID},
		Lines:       lines,
	}, nil
}
