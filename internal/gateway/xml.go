package gateway

import (
	"bytes"
	"encoding/xml"
	"errors"
	"io"
	"strconv"
	"strings"

	"github.com/shestoi/paystation-relay/internal/repository"
)

// Корневые элементы ответов шлюза
const (
	rootInitiation    = "InitiationRequestResponse"
	rootFuturePayment = "PaystationFuturePaymentResponse"
	rootResponse      = "response"
	rootQuickLookup   = "PaystationQuickLookup"
	rootVerification  = "paystationpaymentverification"
)

type initiationResponse struct {
	XMLName             xml.Name `xml:"InitiationRequestResponse"`
	TransactionID       string   `xml:"PaystationTransactionID"`
	DigitalOrder        string   `xml:"DigitalOrder"`
	PaymentRequestTime  string   `xml:"PaymentRequestTime"`
	PaystationErrorCode string   `xml:"PaystationErrorCode"`
	ErrorMessage        string   `xml:"PaystationErrorMessage"`
}

// resultResponse общая форма PaystationFuturePaymentResponse и response
type resultResponse struct {
	XMLName            xml.Name
	ErrorCode          string `xml:"ec"`
	ErrorMessage       string `xml:"em"`
	TransactionID      string `xml:"PaystationTransactionID"`
	PaymentRequestTime string `xml:"PaymentRequestTime"`
}

type quickLookupResponse struct {
	XMLName xml.Name        `xml:"PaystationQuickLookup"`
	Result  *lookupResponse `xml:"LookupResponse"`
}

type lookupResponse struct {
	TransactionID   string `xml:"PaystationTransactionID"`
	Amount          string `xml:"amount"`
	PurchaseAmount  string `xml:"PurchaseAmount"`
	TransactionTime string `xml:"TransactionTime"`
	ErrorCode       string `xml:"PaystationErrorCode"`
	ErrorMessage    string `xml:"PaystationErrorMessage"`
	CardType        string `xml:"CardType"`
	MerchantSession string `xml:"MerchantSession"`
	RequestIP       string `xml:"RemoteHostAddress"`
}

type verificationNotice struct {
	XMLName           xml.Name `xml:"paystationpaymentverification"`
	TransactionID     string   `xml:"ti"`
	PurchaseAmount    string   `xml:"purchaseamount"`
	TransactionTime   string   `xml:"transactiontime"`
	ErrorCode         string   `xml:"ec"`
	ErrorMessage      string   `xml:"em"`
	CardType          string   `xml:"ct"`
	MerchantSession   string   `xml:"merchantsession"`
	RequestIP         string   `xml:"requestip"`
	MerchantReference string   `xml:"merchantreference"`
	Token             string   `xml:"futurepaymenttoken"`
	CardNumber        string   `xml:"cardno"`
	CardExpiry        string   `xml:"cardexpiry"`
}

// rootName возвращает имя корневого элемента документа
func rootName(body []byte) (string, error) {
	dec := xml.NewDecoder(bytes.NewReader(body))
	for {
		tok, err := dec.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return "", errors.New("empty xml document")
			}
			return "", err
		}
		if se, ok := tok.(xml.StartElement); ok {
			return se.Name.Local, nil
		}
	}
}

// parseCode разбирает числовой код шлюза; пустое значение = ErrorCodeUnknown
func parseCode(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return repository.ErrorCodeUnknown, nil
	}
	return strconv.Atoi(raw)
}

// parseCents разбирает сумму в центах; пустое или нечисловое значение = 0
func parseCents(raw string) int64 {
	v, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0
	}
	return v
}
