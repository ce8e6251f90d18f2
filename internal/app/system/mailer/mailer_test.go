package mailer

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dalemusser/bourses/internal/app/system/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/wneessen/go-mail"
	"go.uber.org/zap"
)

type recordingSender struct {
	mu   sync.Mutex
	sent []Email
	err  error
}

func (r *recordingSender) Send(_ context.Context, e Email) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, e)
	return r.err
}

func TestMailer_NotConfigured(t *testing.T) {
	m := New(Config{})
	err := m.Send(context.Background(), Email{To: "a@example.org"})
	if !errors.Is(err, ErrNotConfigured) {
		t.Errorf("Send: got %v, want ErrNotConfigured", err)
	}
}

func TestMailer_Defaults(t *testing.T) {
	m := New(Config{Host: "smtp.example.org"})
	if m.cfg.Port != 587 {
		t.Errorf("Port: got %d, want 587", m.cfg.Port)
	}
	if m.cfg.Timeout != 15*time.Second {
		t.Errorf("Timeout: got %v", m.cfg.Timeout)
	}
}

func TestMailer_Message(t *testing.T) {
	m := New(Config{Host: "smtp.example.org", From: "bourses@example.org", FromName: "Bourses"})

	if _, err := m.message(Email{To: "parent@example.org", Subject: "s", TextBody: "t"}); err != nil {
		t.Fatalf("message failed: %v", err)
	}
	if _, err := m.message(Email{To: "not an address", Subject: "s"}); err == nil {
		t.Error("expected invalid recipient to fail")
	}

	bad := New(Config{Host: "smtp.example.org", From: "nope"})
	if _, err := bad.message(Email{To: "parent@example.org"}); err == nil {
		t.Error("expected invalid sender to fail")
	}
}

func TestTLSPolicy(t *testing.T) {
	tests := []struct {
		in   string
		want mail.TLSPolicy
	}{
		{"", mail.TLSMandatory},
		{"mandatory", mail.TLSMandatory},
		{"Opportunistic", mail.TLSOpportunistic},
		{"none", mail.NoTLS},
	}
	for _, tt := range tests {
		if got := tlsPolicy(tt.in); got != tt.want {
			t.Errorf("tlsPolicy(%q): got %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestDispatcher_Delivers(t *testing.T) {
	sender := &recordingSender{}
	m := metrics.New(prometheus.NewRegistry())
	d := NewDispatcher(sender, zap.NewNop(), m, time.Second)

	d.Dispatch(KindConfirmation, Email{To: "parent@example.org", Subject: "a"})
	d.Dispatch(KindAgentAlert, Email{To: "", Subject: "dropped"})
	d.Wait()

	if len(sender.sent) != 1 {
		t.Fatalf("expected 1 sent mail, got %d", len(sender.sent))
	}
	if got := testutil.ToFloat64(m.MailsSent.WithLabelValues(KindConfirmation, "ok")); got != 1 {
		t.Errorf("mails sent metric: got %v, want 1", got)
	}
}

func TestDispatcher_FailureIsCounted(t *testing.T) {
	sender := &recordingSender{err: errors.New("smtp down")}
	m := metrics.New(prometheus.NewRegistry())
	d := NewDispatcher(sender, zap.NewNop(), m, time.Second)

	d.Dispatch(KindDecision, Email{To: "parent@example.org"})
	d.Wait()

	if got := testutil.ToFloat64(m.MailsSent.WithLabelValues(KindDecision, "error")); got != 1 {
		t.Errorf("failed mail metric: got %v, want 1", got)
	}
}

func TestDispatcher_CloseDrainsThenRefuses(t *testing.T) {
	sender := &recordingSender{}
	m := metrics.New(prometheus.NewRegistry())
	d := NewDispatcher(sender, zap.NewNop(), m, time.Second)

	d.Dispatch(KindConfirmation, Email{To: "parent@example.org"})
	d.Close()
	d.Dispatch(KindDecision, Email{To: "parent@example.org"})
	d.Wait()

	if len(sender.sent) != 1 {
		t.Fatalf("expected only the mail queued before Close, got %d", len(sender.sent))
	}
	if got := testutil.ToFloat64(m.MailsSent.WithLabelValues(KindDecision, "error")); got != 1 {
		t.Errorf("refused mail metric: got %v, want 1", got)
	}
}

func TestDispatcher_DispatchDuringClose(t *testing.T) {
	sender := &recordingSender{}
	d := NewDispatcher(sender, zap.NewNop(), nil, time.Second)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.Dispatch(KindOpened, Email{To: "parent@example.org"})
		}()
	}
	d.Close()
	wg.Wait()
	d.Wait()

	sender.mu.Lock()
	defer sender.mu.Unlock()
	if len(sender.sent) > 20 {
		t.Errorf("sent %d mails for 20 dispatches", len(sender.sent))
	}
}

func TestDispatcher_Nil(t *testing.T) {
	var d *Dispatcher
	d.Dispatch(KindOpened, Email{To: "x@example.org"})
	d.Wait()
	d.Close()
}

func TestBuildConfirmationEmail(t *testing.T) {
	e := BuildConfirmationEmail(ConfirmationEmailData{
		SubmittedAt: time.Date(2016, 9, 3, 10, 0, 0, 0, time.UTC),
		Contact:     "intendance@clg.example.org",
		Telephone:   "01 02 03 04 05",
	})
	if e.Subject != "Accusé de réception" {
		t.Errorf("Subject: got %q", e.Subject)
	}
	for _, body := range []string{e.TextBody, e.HTMLBody} {
		if !strings.Contains(body, "03/09/2016") || !strings.Contains(body, "01 02 03 04 05") {
			t.Errorf("body missing date or telephone: %s", body)
		}
	}
}

func TestBuildAgentAlertEmail(t *testing.T) {
	e := BuildAgentAlertEmail(AgentAlertEmailData{
		GuardianFirstNames: "Jean",
		GuardianLastName:   "DUPONT",
		BaseURL:            "https://bourses.example.org/",
		InstitutionCode:    "CLG-042",
	})
	if e.Subject != "Nouvelle demande - Jean DUPONT" {
		t.Errorf("Subject: got %q", e.Subject)
	}
	want := "https://bourses.example.org/college/CLG-042/demandes/nouvelles"
	if !strings.Contains(e.TextBody, want) || !strings.Contains(e.HTMLBody, want) {
		t.Errorf("dashboard link %q missing", want)
	}
}

func TestBuildOpenedEmail_Escapes(t *testing.T) {
	e := BuildOpenedEmail(OpenedEmailData{InstitutionName: "<b>Arago</b>"})
	if strings.Contains(e.HTMLBody, "<b>Arago</b>") {
		t.Error("institution name must be escaped in HTML body")
	}
}

func TestDecisionLetter(t *testing.T) {
	data := DecisionLetterData{
		InstitutionName: "Collège Arago",
		Amount:          1250.5,
		DecidedAt:       time.Date(2016, 10, 1, 0, 0, 0, 0, time.UTC),
		Text:            "<p>Bourse accordée.</p>",
	}
	letter := BuildDecisionLetter(data)
	if !strings.Contains(letter, "1 250,50 €") {
		t.Errorf("letter missing formatted amount: %s", letter)
	}
	if !strings.Contains(letter, "<p>Bourse accordée.</p>") {
		t.Error("sanitized text should be included verbatim")
	}

	e := BuildDecisionEmail(data)
	if e.HTMLBody != letter {
		t.Error("decision e-mail body should be the letter")
	}
}

func TestFormattedAmount(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "0,00 €"},
		{99.9, "99,90 €"},
		{100, "100,00 €"},
		{1000, "1 000,00 €"},
		{1234567.891, "1 234 567,89 €"},
	}
	for _, tt := range tests {
		if got := (DecisionLetterData{Amount: tt.in}).FormattedAmount(); got != tt.want {
			t.Errorf("FormattedAmount(%v): got %q, want %q", tt.in, got, tt.want)
		}
	}
}
