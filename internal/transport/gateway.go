package transport

import (
	"bytes"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/nao1215/darkcrawl/internal/model"
)

// hyphanetRetryStep is added to the Hyphanet request timeout per retry.
const hyphanetRetryStep = 10 * time.Second

// Errors behind gateway error pages.
var (
	errGatewayNotFound = errors.New("gateway could not retrieve the key")
	errGatewayInvalid  = errors.New("gateway rejected the key")
	errGatewayNotReady = errors.New("gateway node is not set up")
	errGatewayRedirect = errors.New("gateway permanent redirect")
)

// gatewayError detects FProxy error pages. FProxy answers most failures
// with 200 OK and an HTML page whose title names the problem.
//
// "Not found" pages mean the data was not found in time, which a later
// attempt with a longer timeout may fix.
func gatewayError(address string, page *model.PageResult) *FetchError {
	if !strings.HasPrefix(page.ContentType, "text/html") {
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return nil
	}
	title := strings.ToLower(strings.TrimSpace(doc.Find("title").First().Text()))

	switch {
	case title == "not found", title == "route not found", title == "data not found":
		return &FetchError{Kind: KindProxyFailure, Address: address, Err: errGatewayNotFound}
	case strings.HasPrefix(title, "invalid key"):
		return &FetchError{Kind: KindMalformed, Address: address, Err: errGatewayInvalid}
	case strings.HasPrefix(title, "set up freenet"), strings.HasPrefix(title, "set up hyphanet"):
		return &FetchError{Kind: KindProxyFailure, Address: address, Err: errGatewayNotReady}
	case title == "permanent redirect":
		return &FetchError{
			Kind:       KindHTTPError,
			StatusCode: http.StatusMovedPermanently,
			Address:    address,
			Err:        errGatewayRedirect,
			Page:       page,
		}
	}
	return nil
}
