package crawl

// Verdict is the classifier output for one fetched page.
type Verdict struct {
	Status ProductStatus
	Reason SoldOutReason
	Title  string
}

// Classify maps fetched page content plus status code to a product-status
// verdict. The rule list is ordered and the first match wins:
//
//  1. status code outside the success range -> unknown
//  2. buy control present                   -> on_sale
//  3. sold-out marker present               -> sold_out (marker_present)
//  4. generic out-of-stock layout           -> sold_out (button_hidden)
//  5. no rule matched                       -> unknown
//
// A hidden buy button is weaker evidence than an explicit marker, which is
// why rule 4 sits below rule 3.
func Classify(result FetchResult) Verdict {
	if result.StatusCode < 200 || result.StatusCode >= 300 {
		return Verdict{Status: StatusUnknown}
	}

	page, err := ParsePage(result.Body)
	if err != nil {
		return Verdict{Status: StatusUnknown}
	}

	verdict := Verdict{Title: page.Title()}
	switch {
	case page.HasBuyControl():
		verdict.Status = StatusOnSale
	case page.HasSoldOutMarker():
		verdict.Status = StatusSoldOut
		verdict.Reason = ReasonMarkerPresent
	case page.HasOutOfStockLayout():
		verdict.Status = StatusSoldOut
		verdict.Reason = ReasonButtonHidden
	default:
		verdict.Status = StatusUnknown
	}
	return verdict
}
