package service

import (
	"testing"

	"peachhaus_crm_backend/internal/leads/repository"
)

func TestRenderPlaceholders(t *testing.T) {
	lead := repository.Lead{
		FirstName:       "Dana",
		LastName:        "Whitfield",
		Email:           "dana@example.com",
		Phone:           "+14045551234",
		PropertyAddress: "12 Peachtree Ln",
		ServiceType:     "cohosting",
		Stage:           "qualified",
	}

	cases := []struct {
		name string
		in   string
		want string
	}{
		{"first name", "Hi {{first_name}}!", "Hi Dana!"},
		{"full name", "Dear {{name}},", "Dear Dana Whitfield,"},
		{"multiple fields", "{{property_address}} ({{service_type}})", "12 Peachtree Ln (cohosting)"},
		{"unknown placeholder passes through", "Code: {{promo_code}}", "Code: {{promo_code}}"},
		{"no placeholders", "plain text", "plain text"},
		{"repeated placeholder", "{{first_name}} {{first_name}}", "Dana Dana"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := RenderPlaceholders(tc.in, lead); got != tc.want {
				t.Errorf("RenderPlaceholders(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestRenderPlaceholdersTrimsEmptyName(t *testing.T) {
	lead := repository.Lead{FirstName: "Dana"}
	if got := RenderPlaceholders("{{name}}", lead); got != "Dana" {
		t.Errorf("name = %q, want %q", got, "Dana")
	}
}
