package rpki

import "testing"

func TestValidatorValid(t *testing.T) {
	v := &Validator{roas: []roa{
		{ASN: "AS15169", Prefix: "8.8.8.0/24"},
	}}

	if !v.Valid("AS15169", "8.8.8.0/24") {
		t.Error("expected a known (asn, prefix) pair to validate")
	}
	if v.Valid("AS64512", "10.0.0.0/8") {
		t.Error("expected an unknown pair to fail validation")
	}
}

func TestValidatorRejectsEmptyOrWildcard(t *testing.T) {
	v := &Validator{roas: []roa{{ASN: "AS15169", Prefix: "8.8.8.0/24"}}}

	cases := [][2]string{
		{"", "8.8.8.0/24"},
		{"AS15169", ""},
		{"*", "8.8.8.0/24"},
		{"AS15169", "*"},
	}
	for _, c := range cases {
		if v.Valid(c[0], c[1]) {
			t.Errorf("Valid(%q, %q) = true, want false", c[0], c[1])
		}
	}
}
