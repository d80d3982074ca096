// Package normalize приводит исторические форматы deliverables и paymentDetails
// к каноническому виду. Функции пакета никогда не возвращают ошибку: то, что не
// удалось разобрать, оборачивается в один синтетический элемент.
package normalize

import (
	"strconv"
	"strings"
	"time"

	"github.com/senyabanana/bounty-service/internal/models"

	"github.com/tidwall/gjson"
)

// maxNesting ограничивает разворачивание JSON, сохраненного строкой внутри строки.
const maxNesting = 3

var (
	descriptionKeys = []string{"description", "title", "name", "deliverable", "text"}
	amountKeys      = []string{"paymentAmount", "payment_amount", "amount", "payment", "price"}
	dueDateKeys     = []string{"dueDate", "due_date", "deadline", "date"}
	listKeys        = []string{"deliverables", "milestones", "items"}
)

var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"02.01.2006",
	"01/02/2006",
}

// Deliverables разбирает deliverables в любом из сохраненных форматов.
func Deliverables(raw []byte) []models.Deliverable {
	value, ok := unwrap(raw)
	if !ok {
		text := strings.TrimSpace(string(raw))
		if text == "" {
			return nil
		}
		return []models.Deliverable{{Description: text}}
	}
	return deliverablesFrom(value)
}

func deliverablesFrom(value gjson.Result) []models.Deliverable {
	switch {
	case value.IsArray():
		var out []models.Deliverable
		value.ForEach(func(_, item gjson.Result) bool {
			if d, ok := deliverableFrom(item); ok {
				out = append(out, d)
			}
			return true
		})
		return out
	case value.IsObject():
		for _, key := range listKeys {
			if nested := value.Get(key); nested.Exists() && nested.IsArray() {
				return deliverablesFrom(nested)
			}
		}
		if d, ok := deliverableFrom(value); ok {
			return []models.Deliverable{d}
		}
		return []models.Deliverable{{Description: value.Raw}}
	case value.Type == gjson.Null:
		return nil
	default:
		text := strings.TrimSpace(value.String())
		if text == "" {
			return nil
		}
		return []models.Deliverable{{Description: text}}
	}
}

func deliverableFrom(item gjson.Result) (models.Deliverable, bool) {
	if item.Type == gjson.String {
		if nested, ok := unwrap([]byte(item.Raw)); ok && nested.IsObject() {
			return deliverableFrom(nested)
		}
		text := strings.TrimSpace(item.String())
		return models.Deliverable{Description: text}, text != ""
	}
	if !item.IsObject() {
		text := strings.TrimSpace(item.String())
		return models.Deliverable{Description: text}, text != ""
	}

	d := models.Deliverable{
		Description:   firstString(item, descriptionKeys),
		PaymentAmount: firstAmount(item, amountKeys),
		DueDate:       firstDate(item, dueDateKeys),
	}
	if d.Description == "" && d.PaymentAmount == 0 && d.DueDate.IsZero() {
		d.Description = item.Raw
	}
	return d, true
}

// PaymentDetails разбирает детали оплаты с учетом выбранного способа оплаты.
func PaymentDetails(option models.PaymentOption, raw []byte) models.PaymentDetails {
	value, ok := unwrap(raw)
	if !ok {
		text := strings.TrimSpace(string(raw))
		if text == "" {
			return models.PaymentDetails{Kind: string(option)}
		}
		return models.PaymentDetails{Kind: models.LegacyPaymentKind, Raw: text}
	}

	switch option {
	case models.OptionCompletion:
		return models.PaymentDetails{Kind: string(option)}
	case models.OptionMilestones:
		milestones := deliverablesFrom(value)
		if len(milestones) == 0 {
			return models.PaymentDetails{Kind: models.LegacyPaymentKind, Raw: value.Raw}
		}
		return models.PaymentDetails{Kind: string(option), Milestones: milestones}
	case models.OptionSplit:
		if !value.IsObject() {
			return models.PaymentDetails{Kind: models.LegacyPaymentKind, Raw: value.String()}
		}
		return models.PaymentDetails{
			Kind:             string(option),
			UpfrontAmount:    firstAmount(value, []string{"upfrontAmount", "upfront_amount", "upfront"}),
			CompletionAmount: firstAmount(value, []string{"completionAmount", "completion_amount", "completion"}),
		}
	}
	return models.PaymentDetails{Kind: models.LegacyPaymentKind, Raw: value.Raw}
}

// Amount разбирает сумму из числа или строки вида "100", "$1,000.50", "250 USDC".
func Amount(s string) float64 {
	s = strings.TrimSpace(s)
	s = strings.TrimLeft(s, "$€£ ")
	if i := strings.IndexAny(s, " \t"); i > 0 {
		s = s[:i]
	}
	s = strings.ReplaceAll(s, ",", "")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

// Date разбирает дату в одном из известных форматов или unix-время в секундах.
func Date(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil && secs > 0 {
		return time.Unix(secs, 0).UTC()
	}
	return time.Time{}
}

// unwrap разбирает JSON, раскрывая значения, сохраненные строкой с JSON внутри.
func unwrap(raw []byte) (gjson.Result, bool) {
	if len(raw) == 0 || !gjson.ValidBytes(raw) {
		return gjson.Result{}, false
	}
	value := gjson.ParseBytes(raw)
	for i := 0; i < maxNesting && value.Type == gjson.String; i++ {
		inner := strings.TrimSpace(value.String())
		if inner == "" || (inner[0] != '[' && inner[0] != '{' && inner[0] != '"') || !gjson.Valid(inner) {
			break
		}
		value = gjson.Parse(inner)
	}
	return value, true
}

func firstString(item gjson.Result, keys []string) string {
	for _, key := range keys {
		if v := item.Get(key); v.Exists() {
			if text := strings.TrimSpace(v.String()); text != "" {
				return text
			}
		}
	}
	return ""
}

func firstAmount(item gjson.Result, keys []string) float64 {
	for _, key := range keys {
		v := item.Get(key)
		if !v.Exists() {
			continue
		}
		if v.Type == gjson.Number {
			return v.Float()
		}
		if amount := Amount(v.String()); amount != 0 {
			return amount
		}
	}
	return 0
}

func firstDate(item gjson.Result, keys []string) time.Time {
	for _, key := range keys {
		v := item.Get(key)
		if !v.Exists() {
			continue
		}
		if v.Type == gjson.Number {
			if v.Int() > 0 {
				return time.Unix(v.Int(), 0).UTC()
			}
			continue
		}
		if t := Date(v.String()); !t.IsZero() {
			return t
		}
	}
	return time.Time{}
}
