package template

import "testing"

func TestRender(t *testing.T) {
	vars := Variables("Amira", "Shawarma House", "LAUNCH-ABCD2345")

	cases := []struct {
		name string
		in   string
		want string
	}{
		{
			"all variables",
			"Hi {{customer_name}}, {{restaurant_name}} has a treat: use {{promo_code}}!",
			"Hi Amira, Shawarma House has a treat: use LAUNCH-ABCD2345!",
		},
		{
			"spacing inside braces",
			"Hi {{ customer_name }}!",
			"Hi Amira!",
		},
		{
			"unknown placeholder kept visible",
			"Hi {{customer_name}}, your {{reward_title}} awaits",
			"Hi Amira, your {{reward_title}} awaits",
		},
		{
			"no placeholders",
			"Plain message",
			"Plain message",
		},
		{
			"repeated placeholder",
			"{{promo_code}} / {{promo_code}}",
			"LAUNCH-ABCD2345 / LAUNCH-ABCD2345",
		},
		{
			"single braces untouched",
			"a {not_a_var} b",
			"a {not_a_var} b",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Render(tc.in, vars); got != tc.want {
				t.Errorf("Render(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestCoerce(t *testing.T) {
	vars := Coerce(map[string]interface{}{
		"customer_name": "Omar",
		"order_total":   549.0,
		"first":         true,
	})

	if vars["customer_name"] != "Omar" {
		t.Errorf("unexpected customer_name %q", vars["customer_name"])
	}
	if vars["order_total"] != "549" {
		t.Errorf("unexpected order_total %q", vars["order_total"])
	}
	if vars["first"] != "true" {
		t.Errorf("unexpected first %q", vars["first"])
	}
}
