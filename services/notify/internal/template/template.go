package template

import (
	"fmt"
	"regexp"
)

// placeholder matches {{name}} with optional inner spacing.
var placeholder = regexp.MustCompile(`\{\{\s*([a-zA-Z_][a-zA-Z0-9_]*)\s*\}\}`)

// Render substitutes {{variable}} placeholders from vars. Placeholders with
// no matching variable are left untouched so a bad template is visible in
// the delivered message instead of silently blanked.
func Render(body string, vars map[string]string) string {
	return placeholder.ReplaceAllStringFunc(body, func(match string) string {
		name := placeholder.FindStringSubmatch(match)[1]
		if value, ok := vars[name]; ok {
			return value
		}
		return match
	})
}

// Variables builds the standard substitution set for a campaign recipient.
func Variables(customerName, restaurantName, promoCode string) map[string]string {
	return map[string]string{
		"customer_name":   customerName,
		"restaurant_name": restaurantName,
		"promo_code":      promoCode,
	}
}

// Coerce flattens the loosely typed variable map carried on notification
// events into strings.
func Coerce(vars map[string]interface{}) map[string]string {
	out := make(map[string]string, len(vars))
	for k, v := range vars {
		out[k] = fmt.Sprintf("%v", v)
	}
	return out
}
