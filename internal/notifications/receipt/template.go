package receipt

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"strings"
	"text/template"
	"unicode/utf8"

	"receiptnotifier/internal/types"
)

//go:embed templates/*.md.tmpl
var templateFS embed.FS

// ErrMissingTemplateFields is returned when the unit lacks data a message
// needs. The wrapped message lists the missing fields.
var ErrMissingTemplateFields = errors.New("missing template fields")

const (
	maxSubjectLen  = 120 // App IO limit
	dateLayoutIT   = "02/01/2006"
	receiptSubject = "Ricevuta del pagamento a %s"
	cartSubject    = "Ricevute dei pagamenti effettuati"
)

// TemplateBuilder renders the message for one recipient of a unit.
type TemplateBuilder interface {
	Render(unit *types.NotifiableUnit, rcpt Recipient) (types.MessageContent, error)
}

// MarkdownTemplates renders Italian markdown messages from the embedded
// templates. A debtor, or the payer of a single receipt, gets the item
// message; the payer of a cart gets one summary of all items.
type MarkdownTemplates struct {
	item *template.Template
	cart *template.Template
}

func NewMarkdownTemplates() (*MarkdownTemplates, error) {
	item, err := template.ParseFS(templateFS, "templates/debtor.md.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse item template: %w", err)
	}
	cart, err := template.ParseFS(templateFS, "templates/payer_cart.md.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse cart template: %w", err)
	}
	return &MarkdownTemplates{item: item, cart: cart}, nil
}

type itemData struct {
	PayeeName  string
	Subject    string
	Amount     string
	PaidAt     string
	NoticeCode string
}

type cartData struct {
	TotalAmount string
	PaidAt      string
	Items       []itemData
}

func (m *MarkdownTemplates) Render(unit *types.NotifiableUnit, rcpt Recipient) (types.MessageContent, error) {
	if rcpt.Role == types.RolePayer && unit.Kind == types.UnitKindCart {
		return m.renderCart(unit)
	}

	item := unit.Debtors[0]
	if rcpt.Role == types.RoleDebtor {
		d, ok := unit.Debtor(rcpt.SubUnitID)
		if !ok {
			return types.MessageContent{}, fmt.Errorf("%w: debtor item %q", ErrMissingTemplateFields, rcpt.SubUnitID)
		}
		item = *d
	}

	data := newItemData(unit, item)
	var missing []string
	if data.PayeeName == "" {
		missing = append(missing, "payee_name")
	}
	if data.Amount == "" {
		missing = append(missing, "amount")
	}
	if len(missing) > 0 {
		return types.MessageContent{}, fmt.Errorf("%w: %s", ErrMissingTemplateFields, strings.Join(missing, ", "))
	}

	var buf bytes.Buffer
	if err := m.item.Execute(&buf, data); err != nil {
		return types.MessageContent{}, fmt.Errorf("render item message: %w", err)
	}
	return types.MessageContent{
		Subject:  subject(fmt.Sprintf(receiptSubject, data.PayeeName)),
		Markdown: buf.String(),
	}, nil
}

func (m *MarkdownTemplates) renderCart(unit *types.NotifiableUnit) (types.MessageContent, error) {
	data := cartData{
		TotalAmount: unit.Payment.TotalAmount,
		PaidAt:      formatDate(unit),
	}
	var missing []string
	if data.TotalAmount == "" {
		missing = append(missing, "total_amount")
	}
	for _, d := range unit.Debtors {
		it := newItemData(unit, d)
		if it.PayeeName == "" || it.Amount == "" {
			missing = append(missing, fmt.Sprintf("item %s", d.SubUnitID))
			continue
		}
		data.Items = append(data.Items, it)
	}
	if len(missing) > 0 {
		return types.MessageContent{}, fmt.Errorf("%w: %s", ErrMissingTemplateFields, strings.Join(missing, ", "))
	}

	var buf bytes.Buffer
	if err := m.cart.Execute(&buf, data); err != nil {
		return types.MessageContent{}, fmt.Errorf("render cart message: %w", err)
	}
	return types.MessageContent{Subject: cartSubject, Markdown: buf.String()}, nil
}

// newItemData fills item fields, falling back to the unit payment data for
// a single receipt.
func newItemData(unit *types.NotifiableUnit, d types.DebtorItem) itemData {
	data := itemData{
		PayeeName:  d.PayeeName,
		Subject:    d.Subject,
		Amount:     d.Amount,
		PaidAt:     formatDate(unit),
		NoticeCode: unit.Payment.NoticeCode,
	}
	if data.PayeeName == "" {
		data.PayeeName = unit.Payment.PayeeName
	}
	if data.Amount == "" && unit.Kind == types.UnitKindReceipt {
		data.Amount = unit.Payment.TotalAmount
	}
	if data.Subject == "" {
		data.Subject = "Pagamento avviso"
	}
	return data
}

func formatDate(unit *types.NotifiableUnit) string {
	if unit.Payment.PaidAt.IsZero() {
		return ""
	}
	return unit.Payment.PaidAt.Format(dateLayoutIT)
}

// subject truncates s to the provider's subject limit.
func subject(s string) string {
	if utf8.RuneCountInString(s) > maxSubjectLen {
		r := []rune(s)
		return string(r[:maxSubjectLen-3]) + "..."
	}
	return s
}
