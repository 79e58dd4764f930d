package crawl

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Selectors for the DOM signals the classifier relies on. These encode the
// target site's actual markup: the buy button carries a stable id, and a
// delisted product renders a dedicated error page.
const (
	buyButtonSelector     = "button.btnBuy.goods_buy#cartBtn"
	soldOutPageSelector   = "#error-contents.error-page.noProduct"
	soldOutMarkerSelector = ".soldout_txt"
	buyAreaSelector       = ".prd_btn_area"
)

// PageSignals exposes the typed DOM inspections the classifier needs. Each
// signal is independently testable with literal HTML fixtures.
type PageSignals struct {
	doc *goquery.Document
}

// ParsePage parses rendered page content into a PageSignals inspector.
func ParsePage(body []byte) (*PageSignals, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}
	return &PageSignals{doc: doc}, nil
}

// Title returns the trimmed page title, or "" when absent.
func (p *PageSignals) Title() string {
	return strings.TrimSpace(p.doc.Find("title").First().Text())
}

// HasBuyControl reports whether the buy button is present and displayed.
func (p *PageSignals) HasBuyControl() bool {
	btn := p.doc.Find(buyButtonSelector).First()
	if btn.Length() == 0 {
		return false
	}
	return !isHidden(btn)
}

// HasSoldOutMarker reports whether the page carries an explicit sold-out
// signal: the product-not-found error page or a sold-out text element.
func (p *PageSignals) HasSoldOutMarker() bool {
	if p.doc.Find(soldOutPageSelector).Length() > 0 {
		return true
	}
	return p.doc.Find(soldOutMarkerSelector).Length() > 0
}

// HasOutOfStockLayout reports the generic out-of-stock layout signature: the
// buy button rendered but hidden, or the purchase area present without it.
func (p *PageSignals) HasOutOfStockLayout() bool {
	btn := p.doc.Find(buyButtonSelector).First()
	if btn.Length() > 0 {
		return isHidden(btn)
	}
	return p.doc.Find(buyAreaSelector).Length() > 0
}

func isHidden(sel *goquery.Selection) bool {
	style, ok := sel.Attr("style")
	if !ok {
		return false
	}
	style = strings.ReplaceAll(strings.ToLower(style), " ", "")
	return strings.Contains(style, "display:none")
}
