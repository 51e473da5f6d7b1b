// Package tenant restricts unit visibility per organization. There is no
// explicit SKU-to-warehouse mapping table: warehouse model numbers carry
// suffix variants (color, wattage, kitting codes) that the canonical SKU
// catalog does not, so visibility is decided by fuzzy prefix matching
// against the organization's owned SKU codes.
package tenant

import (
	"regexp"
	"strings"

	"github.com/bdi-platform/wip-backend/internal/models"
)

// InternalOrgCode is the operating organization; its members and
// super-admin callers see everything.
const InternalOrgCode = "BDI"

var skuPrefixPattern = regexp.MustCompile(`^[A-Za-z]+\d+`)

// ExtractSKUPrefix returns the leading letters+digits run of a SKU code,
// e.g. "MNQ1525" from "MNQ1525-30W-U". Codes with no structured prefix act
// as their own prefix.
func ExtractSKUPrefix(code string) string {
	code = strings.TrimSpace(code)
	if m := skuPrefixPattern.FindString(code); m != "" {
		return m
	}
	return code
}

// Identity is the caller's resolved organization scope, handed to the
// engine by the auth collaborator.
type Identity struct {
	Role    string
	OrgCode string
	OrgType string
}

func (id Identity) IsInternal() bool {
	return id.Role == "super_admin" ||
		(strings.EqualFold(id.OrgCode, InternalOrgCode) && id.OrgType == "internal")
}

// Visibility is a compiled tenant filter for one request.
type Visibility struct {
	Bypass   bool
	prefixes []string
}

// AllVisible bypasses filtering entirely.
func AllVisible() Visibility {
	return Visibility{Bypass: true}
}

// NewVisibility compiles the owned SKU codes of a partner organization into
// uppercase prefixes. A partner with no owned codes sees nothing.
func NewVisibility(ownedSKUCodes []string) Visibility {
	seen := map[string]struct{}{}
	var prefixes []string
	for _, code := range ownedSKUCodes {
		p := strings.ToUpper(ExtractSKUPrefix(code))
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		prefixes = append(prefixes, p)
	}
	return Visibility{prefixes: prefixes}
}

// Visible reports whether a model number prefix-matches any owned SKU,
// case-insensitively.
func (v Visibility) Visible(modelNumber string) bool {
	if v.Bypass {
		return true
	}
	model := strings.ToUpper(strings.TrimSpace(modelNumber))
	if model == "" {
		return false
	}
	for _, p := range v.prefixes {
		if strings.HasPrefix(model, p) {
			return true
		}
	}
	return false
}

// Filter keeps only the units visible to the caller. It runs after the
// storage fetch and before pagination or aggregation so every derived view
// stays tenant-consistent.
func (v Visibility) Filter(units []models.WIPUnit) []models.WIPUnit {
	if v.Bypass {
		return units
	}
	out := make([]models.WIPUnit, 0, len(units))
	for _, u := range units {
		if v.Visible(u.ModelNumber) {
			out = append(out, u)
		}
	}
	return out
}
