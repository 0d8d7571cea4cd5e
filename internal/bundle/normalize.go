package bundle

import "strings"

// NormalizeID reduces a product or variant identifier to its bare numeric
// form. Identifiers arrive either as plain numbers or as platform GIDs
// such as "gid://shopify/ProductVariant/123"; every comparison boundary
// (category membership, duplicate detection, tier allow-lists, inventory
// keys) must go through this function or equal ids silently mismatch.
func NormalizeID(id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return ""
	}
	if idx := strings.LastIndexByte(id, '/'); idx >= 0 {
		id = id[idx+1:]
	}
	return id
}
