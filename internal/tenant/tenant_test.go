package tenant

import (
	"testing"

	"github.com/bdi-platform/wip-backend/internal/models"
)

func TestExtractSKUPrefix(t *testing.T) {
	cases := map[string]string{
		"MNQ1525-30W-U": "MNQ1525",
		"MNQ1525":       "MNQ1525",
		"CGM4981COM":    "CGM4981",
		"  XB7-t  ":     "XB7",
		"NOPREFIX":      "NOPREFIX",
		"":              "",
	}
	for code, want := range cases {
		if got := ExtractSKUPrefix(code); got != want {
			t.Fatalf("%q: expected prefix %q, got %q", code, want, got)
		}
	}
}

func TestIdentityIsInternal(t *testing.T) {
	cases := []struct {
		id   Identity
		want bool
	}{
		{Identity{Role: "super_admin"}, true},
		{Identity{Role: "viewer", OrgCode: "BDI", OrgType: "internal"}, true},
		{Identity{Role: "viewer", OrgCode: "bdi", OrgType: "internal"}, true},
		{Identity{Role: "viewer", OrgCode: "BDI", OrgType: "partner"}, false},
		{Identity{Role: "viewer", OrgCode: "ACME", OrgType: "internal"}, false},
		{Identity{}, false},
	}
	for _, tc := range cases {
		if got := tc.id.IsInternal(); got != tc.want {
			t.Fatalf("%+v: expected %v, got %v", tc.id, tc.want, got)
		}
	}
}

func TestVisibility_FuzzyPrefixMatch(t *testing.T) {
	vis := NewVisibility([]string{"MNQ1525", "CGM4981-KIT"})

	if !vis.Visible("MNQ1525-30W-U") {
		t.Fatalf("expected suffix variant visible")
	}
	if !vis.Visible("mnq1525-30w-u") {
		t.Fatalf("expected match to be case-insensitive")
	}
	if !vis.Visible("CGM4981COM") {
		t.Fatalf("expected catalog suffix stripped before matching")
	}
	if vis.Visible("XB7-t") {
		t.Fatalf("expected unowned model hidden")
	}
	if vis.Visible("") {
		t.Fatalf("expected empty model hidden")
	}
}

func TestVisibility_EmptyCatalogSeesNothing(t *testing.T) {
	vis := NewVisibility(nil)
	if vis.Visible("MNQ1525-30W-U") {
		t.Fatalf("expected partner with no owned SKUs to see nothing")
	}
}

func TestVisibility_Bypass(t *testing.T) {
	vis := AllVisible()
	if !vis.Visible("ANYTHING-AT-ALL") || !vis.Visible("") {
		t.Fatalf("expected bypass to see everything")
	}
}

func TestFilter(t *testing.T) {
	units := []models.WIPUnit{
		{SerialNumber: "SN-1", ModelNumber: "MNQ1525-30W-U"},
		{SerialNumber: "SN-2", ModelNumber: "XB7-t"},
		{SerialNumber: "SN-3", ModelNumber: "MNQ1525"},
	}
	vis := NewVisibility([]string{"MNQ1525"})
	kept := vis.Filter(units)
	if len(kept) != 2 {
		t.Fatalf("expected 2 visible units, got %d", len(kept))
	}
	for _, u := range kept {
		if u.SerialNumber == "SN-2" {
			t.Fatalf("expected SN-2 filtered out")
		}
	}
}
