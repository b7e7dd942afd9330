package service

import (
	"fmt"
	"net/url"

	"github.com/skip2/go-qrcode"
)

// QRGenerator renders the code printed on a table; scanning it opens the page
// guests use to call staff.
type QRGenerator interface {
	Generate(locationID, tableID string) ([]byte, error)
}

type DefaultQRGenerator struct {
	BaseURL string
}

func (g DefaultQRGenerator) Generate(locationID, tableID string) ([]byte, error) {
	qrData := fmt.Sprintf("%s/call.html?location=%s&table=%s",
		g.BaseURL, url.QueryEscape(locationID), url.QueryEscape(tableID))
	return qrcode.Encode(qrData, qrcode.Medium, 256)
}
