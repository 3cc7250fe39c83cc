package service

import (
	"strings"

	"peachhaus_crm_backend/internal/leads/repository"
)

// RenderPlaceholders substitutes {{placeholder}} tokens in a rule template
// with lead fields. Substitution is literal string replacement; unknown
// tokens are left in place.
func RenderPlaceholders(tpl string, lead repository.Lead) string {
	fullName := strings.TrimSpace(lead.FirstName + " " + lead.LastName)
	replacer := strings.NewReplacer(
		"{{name}}", fullName,
		"{{first_name}}", lead.FirstName,
		"{{last_name}}", lead.LastName,
		"{{email}}", lead.Email,
		"{{phone}}", lead.Phone,
		"{{property_address}}", lead.PropertyAddress,
		"{{service_type}}", lead.ServiceType,
		"{{stage}}", lead.Stage,
	)
	return replacer.Replace(tpl)
}
