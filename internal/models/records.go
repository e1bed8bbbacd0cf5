package models

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Attachment points at an object held by the file upload service.
type Attachment struct {
	FileURL  string `json:"fileUrl"`
	FileName string `json:"fileName"`
}

// Amount accepts both JSON numbers and strings. Form input arrives as strings while
// rows loaded back from the spreadsheet are numbers.
type Amount string

func (a Amount) MarshalJSON() ([]byte, error) {
	s := strings.TrimSpace(string(a))
	if s == "" {
		return []byte(`""`), nil
	}
	if isPlainInt(s) {
		return []byte(s), nil
	}
	return json.Marshal(s)
}

func isPlainInt(s string) bool {
	if s[0] == '+' || (len(s) > 1 && s[0] == '0') {
		return false
	}
	_, err := strconv.ParseInt(s, 10, 64)
	return err == nil
}

func (a *Amount) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*a = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*a = Amount(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*a = Amount(n.String())
	return nil
}

// Digits strips everything but 0-9, the way amount inputs are normalised.
func (a Amount) Digits() Amount {
	var b strings.Builder
	for _, r := range string(a) {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return Amount(b.String())
}

// JobEntry is one row of the data-entry staging table. Field names match the
// spreadsheet columns so rows can be pushed unchanged.
type JobEntry struct {
	ID        string `json:"id,omitempty"`
	Thang     string `json:"Thang,omitempty"`
	Ma        string `json:"Ma"`
	MaKH      Amount `json:"MaKH,omitempty"`
	SoTien    Amount `json:"SoTien,omitempty"`
	TrangThai string `json:"TrangThai,omitempty"`
	NoiDung1  string `json:"NoiDung1,omitempty"`
	NoiDung2  string `json:"NoiDung2,omitempty"`
}

// RecordID falls back to the job code for rows staged before ids existed.
func (j JobEntry) RecordID() string {
	if j.ID != "" {
		return j.ID
	}
	return j.Ma
}

func (j JobEntry) RecordKey() string { return j.Ma }

func (j JobEntry) WithID(id string) JobEntry {
	j.ID = id
	return j
}

// MblPayment is a carrier (MBL) payment awaiting or carrying proof of payment.
type MblPayment struct {
	ID             string `json:"id"`
	MaLine         string `json:"maLine"`
	SoTien         Amount `json:"soTien"`
	Mbl            string `json:"mbl"`
	HoaDonURL      string `json:"hoaDonUrl"`
	HoaDonFilename string `json:"hoaDonFilename"`
}

func (m MblPayment) RecordID() string  { return m.ID }
func (m MblPayment) RecordKey() string { return m.MaLine }

func (m MblPayment) WithID(id string) MblPayment {
	m.ID = id
	return m
}

func (m MblPayment) Attachment() Attachment {
	return Attachment{FileURL: m.HoaDonURL, FileName: m.HoaDonFilename}
}

func (m MblPayment) WithAttachment(a Attachment) MblPayment {
	m.HoaDonURL = a.FileURL
	m.HoaDonFilename = a.FileName
	return m
}

// Submission is a refund-deposit document filed against a house bill of lading.
type Submission struct {
	ID       string `json:"id"`
	Hbl      string `json:"hbl"`
	FileURL  string `json:"fileUrl"`
	FileName string `json:"fileName"`
}

func (s Submission) RecordID() string  { return s.ID }
func (s Submission) RecordKey() string { return s.Hbl }

func (s Submission) WithID(id string) Submission {
	s.ID = id
	return s
}

func (s Submission) Attachment() Attachment {
	return Attachment{FileURL: s.FileURL, FileName: s.FileName}
}

func (s Submission) WithAttachment(a Attachment) Submission {
	s.FileURL = a.FileURL
	s.FileName = a.FileName
	return s
}

// BankingEntry is a transfer beneficiary kept on the local machine only.
type BankingEntry struct {
	ID            string `json:"id"`
	BankName      string `json:"bankName"`
	AccountNumber string `json:"accountNumber"`
	AccountHolder string `json:"accountHolder"`
	Amount        Amount `json:"amount"`
	Content       string `json:"content"`
}

// Ledger is the remote document shape for features with a completion step.
type Ledger[T any] struct {
	Pending   []T      `json:"pending"`
	Completed []T      `json:"completed"`
	Options   []string `json:"options,omitempty"`
}

const (
	ActionSubmission = "Nộp hồ sơ hoàn cược"
	ActionMblPayment = "Thêm thanh toán MBL"
)

// Notification is an entry of the local activity feed.
type Notification struct {
	ID        string `json:"id"`
	UserEmail string `json:"userEmail"`
	Action    string `json:"action"`
	Details   string `json:"details"`
	Timestamp string `json:"timestamp"`
	Read      bool   `json:"read"`
}
