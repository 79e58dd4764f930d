package crawl

import (
	"fmt"
	"net/url"
	"strings"
)

// DefaultBaseURL is the product detail endpoint targeted by the crawler.
const DefaultBaseURL = "https://www.oliveyoung.co.kr/store/goods/getGoodsDetail.do"

// DefaultIDMarker is the leading character every valid identifier carries.
const DefaultIDMarker = "A"

// ValidateIdentifier checks the format rule for product identifiers: the
// marker prefix followed by at least one character.
func ValidateIdentifier(id, marker string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("identifier is empty")
	}
	if marker != "" && !strings.HasPrefix(id, marker) {
		return fmt.Errorf("identifier %q does not start with marker %q", id, marker)
	}
	if len(id) <= len(marker) {
		return fmt.Errorf("identifier %q has no body after marker", id)
	}
	return nil
}

// ProductURL derives the target URL for an identifier from the base URL
// template. Derivation is deterministic: the same identifier always maps to
// the same URL.
func ProductURL(baseURL, productID string) string {
	q := url.Values{}
	q.Set("goodsNo", productID)
	return baseURL + "?" + q.Encode()
}
