package gateway

import (
	"encoding/xml"
	"fmt"
	"mime"
	"net/url"
	"strings"
)

// Notice POST-back уведомление шлюза о завершении транзакции
type Notice struct {
	Snapshot
	MerchantReference string
	Token             string
	CardNumber        string
	CardExpiry        string
}

// HasCard возвращает true, если уведомление несёт токенизированную карту
func (n Notice) HasCard() bool {
	return n.Token != ""
}

// ParseNotice разбирает тело POST-back: XML paystationpaymentverification или form-encoded поля с теми же именами
func ParseNotice(body []byte, contentType string) (Notice, error) {
	mediaType, _, _ := mime.ParseMediaType(contentType)

	var v verificationNotice
	if mediaType == "application/x-www-form-urlencoded" {
		form, err := url.ParseQuery(string(body))
		if err != nil {
			return Notice{}, fmt.Errorf("%w: %v", ErrInvalidNotice, err)
		}
		v = verificationNotice{
			TransactionID:     form.Get("ti"),
			PurchaseAmount:    form.Get("purchaseamount"),
			TransactionTime:   form.Get("transactiontime"),
			ErrorCode:         form.Get("ec"),
			ErrorMessage:      form.Get("em"),
			CardType:          form.Get("ct"),
			MerchantSession:   form.Get("merchantsession"),
			RequestIP:         form.Get("requestip"),
			MerchantReference: form.Get("merchantreference"),
			Token:             form.Get("futurepaymenttoken"),
			CardNumber:        form.Get("cardno"),
			CardExpiry:        form.Get("cardexpiry"),
		}
	} else {
		root, err := rootName(body)
		if err != nil {
			return Notice{}, fmt.Errorf("%w: %v", ErrInvalidNotice, err)
		}
		if root != rootVerification {
			return Notice{}, fmt.Errorf("%w: unexpected root %s", ErrInvalidNotice, root)
		}
		if err := xml.Unmarshal(body, &v); err != nil {
			return Notice{}, fmt.Errorf("%w: %v", ErrInvalidNotice, err)
		}
	}

	id := strings.TrimSpace(v.TransactionID)
	if id == "" {
		return Notice{}, fmt.Errorf("%w: transaction id is missing", ErrInvalidNotice)
	}
	code, err := parseCode(v.ErrorCode)
	if err != nil {
		return Notice{}, fmt.Errorf("%w: error code %q", ErrInvalidNotice, v.ErrorCode)
	}

	return Notice{
		Snapshot: Snapshot{
			TransactionID:   id,
			MerchantSession: strings.TrimSpace(v.MerchantSession),
			ErrorCode:       code,
			ErrorMessage:    v.ErrorMessage,
			Amount:          parseCents(v.PurchaseAmount),
			CardType:        v.CardType,
			RequestIP:       v.RequestIP,
			TransactionTime: v.TransactionTime,
		},
		MerchantReference: v.MerchantReference,
		Token:             strings.TrimSpace(v.Token),
		CardNumber:        strings.TrimSpace(v.CardNumber),
		CardExpiry:        strings.TrimSpace(v.CardExpiry),
	}, nil
}
