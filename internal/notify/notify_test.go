package notify

import (
	"context"
	"errors"
	"io"
	"mime/quotedprintable"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/projectvak/contract-pipeline/internal/common"
	"github.com/projectvak/contract-pipeline/internal/confidence"
	"github.com/projectvak/contract-pipeline/internal/normalize"
)

func TestNewPicksNotifier(t *testing.T) {
	if _, ok := New(common.NotifyConfig{}, nil).(*LogNotifier); !ok {
		t.Fatal("unconfigured notifier should only log")
	}
	n, ok := New(common.NotifyConfig{Username: "bot@example.be", Password: "pw", To: []string{"ops@example.be"}}, nil).(*SMTPNotifier)
	if !ok {
		t.Fatal("configured notifier should use smtp")
	}
	if n.addr != "smtp.gmail.com:587" || n.from != "bot@example.be" {
		t.Fatalf("addr=%s from=%s", n.addr, n.from)
	}
}

func TestSMTPNotifierSend(t *testing.T) {
	n := NewSMTPNotifier(common.NotifyConfig{
		SMTPHost: "mail.example.be", SMTPPort: 2525,
		Username: "bot@example.be", Password: "pw",
		To: []string{"a@example.be", "b@example.be"},
	}, nil)
	n.now = func() time.Time { return time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC) }

	var (
		gotAddr string
		gotTo   []string
		gotMsg  []byte
	)
	n.send = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotTo, gotMsg = addr, to, msg
		return nil
	}

	if err := n.Send(context.Background(), "Contract Processed: Huurovereenkomst - é.pdf", "Huur: €850\nregel 2"); err != nil {
		t.Fatal(err)
	}
	if gotAddr != "mail.example.be:2525" || len(gotTo) != 2 {
		t.Fatalf("addr=%s to=%v", gotAddr, gotTo)
	}

	head, body, ok := strings.Cut(string(gotMsg), "\r\n\r\n")
	if !ok {
		t.Fatal("no header/body separator")
	}
	for _, want := range []string{"To: a@example.be, b@example.be", "Subject: =?utf-8?q?", "Content-Transfer-Encoding: quoted-printable"} {
		if !strings.Contains(head, want) {
			t.Errorf("headers missing %q:\n%s", want, head)
		}
	}
	decoded, err := io.ReadAll(quotedprintable.NewReader(strings.NewReader(body)))
	if err != nil {
		t.Fatal(err)
	}
	if string(decoded) != "Huur: €850\r\nregel 2" {
		t.Fatalf("body = %q", decoded)
	}
}

func TestSMTPNotifierSendError(t *testing.T) {
	n := NewSMTPNotifier(common.NotifyConfig{Username: "u", To: []string{"x@example.be"}}, nil)
	n.send = func(string, smtp.Auth, string, []string, []byte) error { return errors.New("535 auth failed") }
	if err := n.Send(context.Background(), "s", "b"); err == nil {
		t.Fatal("expected error")
	}
}

func TestReportBody(t *testing.T) {
	rent, deposit := 850.0, 1700.0
	start := "2024-03-01"
	c := &normalize.Contract{}
	c.Partijen.Verhuurder.Naam = "Jan Peeters"
	c.Pand.Adres = "Veldstraat 10, 9000 Gent"
	c.Financieel.Huurprijs = &rent
	c.Financieel.Waarborg.Bedrag = &deposit
	c.Periodes.Ingangsdatum = &start

	tests := []struct {
		name string
		conf confidence.Result
		want []string
		not  []string
	}{
		{
			name: "approved",
			conf: confidence.Result{Score: 97.5, Metrics: confidence.Metrics{Completeness: 0.8}},
			want: []string{"Assessment: ✅ Approved", "Data Completeness: 80%", "Confidence Score: 97.5%"},
			not:  []string{"ATTENTION POINTS"},
		},
		{
			name: "review",
			conf: confidence.Result{Score: 70, NeedsReview: true, Details: "ISSUES:\n- Missing critical: huurder_naam"},
			want: []string{"Assessment: ⚠️ Review Required", "ATTENTION POINTS\nISSUES:\n- Missing critical: huurder_naam"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Report{
				Filename: "contract.pdf", Title: "Huurovereenkomst", SizeBytes: 1536,
				Processed: time.Date(2024, 3, 1, 9, 5, 0, 0, time.UTC), Confidence: tt.conf, Target: 95,
				Contract: c, Summary: "Korte samenvatting.", JSONName: "data_contract_20240301_090500.json",
			}
			body := r.Body()
			want := append([]string{
				"Filename: contract.pdf", "Size: 1.5 KiB", "Processing Date: 01-03-2024 09:05",
				"Landlord: Jan Peeters", "Tenant: N/A", "Address: Veldstraat 10, 9000 Gent",
				"Rent: €850.00/month", "Deposit: €1700.00", "Start Date: 2024-03-01", "Duration: N/A",
				"Korte samenvatting.", "data_contract_20240301_090500.json",
			}, tt.want...)
			for _, w := range want {
				if !strings.Contains(body, w) {
					t.Errorf("body missing %q", w)
				}
			}
			for _, w := range tt.not {
				if strings.Contains(body, w) {
					t.Errorf("body should not contain %q", w)
				}
			}
			if r.Subject() != "Contract Processed: Huurovereenkomst - contract.pdf" {
				t.Errorf("subject = %q", r.Subject())
			}
		})
	}
}

func TestReportOmitsEmptyFinancials(t *testing.T) {
	r := Report{Contract: &normalize.Contract{}, Confidence: confidence.Result{NeedsReview: true}}
	if strings.Contains(r.Body(), "FINANCIAL") {
		t.Fatal("financial block rendered without amounts")
	}
}

func TestFailureMessage(t *testing.T) {
	f := Failure{Filename: "scan.pdf", Path: "/Georganiseerd/Huurcontracten/scan.pdf", Reason: "insufficient text", When: time.Date(2024, 3, 1, 9, 5, 0, 0, time.UTC)}
	if f.Subject() != "Contract Not Processed: scan.pdf" {
		t.Fatalf("subject = %q", f.Subject())
	}
	if !strings.Contains(f.Body(), "Reason: insufficient text") {
		t.Fatalf("body = %q", f.Body())
	}
}
