package directive

import (
	"strings"

	"github.com/aretw0/orderflow/pkg/domain"
	"github.com/aretw0/orderflow/pkg/rules"
)

// Default option sets for question markers that carry no options, keyed by the
// semantic category found in the marker title.
var (
	binaryOptions  = []string{"Yes", "No"}
	genericOptions = []string{"Yes", "No", "Not sure"}

	optionCategories = []struct {
		keywords []string
		options  []string
	}{
		{[]string{"dietary", "diet", "restriction", "restrictions", "allergy", "allergies"}, []string{"None", "Vegetarian", "Vegan", "Gluten-free", "Halal"}},
		{[]string{"size", "portion"}, []string{"Small", "Regular", "Large"}},
		{[]string{"spice", "spicy", "heat"}, []string{"Mild", "Medium", "Hot"}},
		{[]string{"delivery", "pickup", "fulfillment", "fulfilment"}, []string{"Delivery", "Pickup"}},
	}

	defaultPreferenceFields = []string{"dietary_restrictions", "spice_level", "budget"}
	defaultDeliveryFields   = []string{"fulfillment_method", "address", "phone", "delivery_time"}
)

// Build converts a marker payload into a directive using the construction rule
// of its type.
func Build(t domain.DirectiveType, title, data string) domain.Directive {
	d := domain.Directive{Type: t, Title: title, Params: map[string]any{}}

	switch t {
	case domain.DirectiveItemList:
		d.Params[domain.ParamItems] = nonNil(SplitList(data))
	case domain.DirectiveItemDetail:
		d.Params[domain.ParamItemID] = Unescape(data)
	case domain.DirectiveOrderSummary:
		if items := SplitList(data); len(items) > 0 {
			d.Params[domain.ParamItems] = items
		}
	case domain.DirectiveBinaryChoiceQuestion:
		opts := SplitList(data)
		if len(opts) == 0 {
			opts = clone(binaryOptions)
		}
		d.Params[domain.ParamOptions] = opts
	case domain.DirectiveMultipleChoiceQuestion:
		opts := SplitList(data)
		if len(opts) == 0 {
			opts = DefaultOptions(title)
		}
		d.Params[domain.ParamOptions] = opts
	case domain.DirectivePreferenceForm:
		fields := SplitList(data)
		if len(fields) == 0 {
			fields = clone(defaultPreferenceFields)
		}
		d.Params[domain.ParamFields] = fields
	case domain.DirectiveDeliveryForm:
		fields := SplitList(data)
		if len(fields) == 0 {
			fields = clone(defaultDeliveryFields)
		}
		d.Params[domain.ParamFields] = fields
	case domain.DirectiveKnowledgeCard:
		q := Unescape(data)
		if q == "" {
			q = title
		}
		d.Params[domain.ParamQuery] = q
	}
	return d
}

// DefaultOptions picks the fallback option set for a multiple-choice question
// from keywords in its title.
func DefaultOptions(title string) []string {
	norm := rules.Normalize(title)
	for _, c := range optionCategories {
		for _, kw := range c.keywords {
			if strings.Contains(norm, " "+kw+" ") {
				return clone(c.options)
			}
		}
	}
	return clone(genericOptions)
}

func clone(s []string) []string {
	return append([]string(nil), s...)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
