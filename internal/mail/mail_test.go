package mail

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"templatestore/internal/domain"
)

type captureTransport struct {
	got []Email
	err error
}

func (c *captureTransport) Deliver(_ context.Context, e Email) error {
	if c.err != nil {
		return c.err
	}
	c.got = append(c.got, e)
	return nil
}

func TestTemplates_PaymentConfirmed(t *testing.T) {
	out, err := DefaultTemplates().Render(domain.TemplatePaymentConfirmed, "", map[string]any{
		"order_id":    "o-123",
		"name":        "Ada",
		"total_cents": int64(8000),
		"currency":    "USD",
		"order_url":   "https://shop.example/orders/o-123",
		"downloads": []map[string]any{
			{"file_name": "kit.zip", "url": "https://shop.example/downloads?token=abc", "max_downloads": 5, "expires_at": "2026-06-04"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "Your order o-123 is confirmed", out.Subject)
	assert.Contains(t, out.HTML, "Hi Ada,")
	assert.Contains(t, out.HTML, "80.00 USD")
	assert.Contains(t, out.HTML, `<a href="https://shop.example/downloads?token=abc">kit.zip</a>`)
	assert.Contains(t, out.Text, "- kit.zip: https://shop.example/downloads?token=abc")
}

func TestTemplates_SubjectOverrideAndDefaults(t *testing.T) {
	out, err := DefaultTemplates().Render(domain.TemplateOTPCode, "Code {{ code }}", map[string]any{"code": "424242"})
	require.NoError(t, err)
	assert.Equal(t, "Code 424242", out.Subject)
	assert.Contains(t, out.Text, "424242")

	_, err = DefaultTemplates().Render("nope", "", nil)
	assert.Error(t, err)
}

func TestMailer_Send(t *testing.T) {
	tr := &captureTransport{}
	m := NewMailer("shop@example.com", nil, tr, nil)

	err := m.Send(context.Background(), Message{To: " ada@example.com ", Template: domain.TemplateOTPCode, Data: map[string]any{"code": "1234"}})
	require.NoError(t, err)
	require.Len(t, tr.got, 1)
	assert.Equal(t, "shop@example.com", tr.got[0].From)
	assert.Equal(t, "ada@example.com", tr.got[0].To)
	assert.Equal(t, "Your verification code", tr.got[0].Subject)

	tr.err = errors.New("relay denied")
	err = m.Send(context.Background(), Message{To: "ada@example.com", Template: domain.TemplateOTPCode})
	assert.EqualError(t, err, "relay denied")

	err = m.Send(context.Background(), Message{To: "", Template: domain.TemplateOTPCode})
	assert.Error(t, err)
}

func TestRedactEmail(t *testing.T) {
	assert.Equal(t, "a***@example.com", redactEmail("ada@example.com"))
	assert.Equal(t, "***@x.io", redactEmail("a@x.io"))
	assert.Equal(t, "***nobody", redactEmail("nobody"))
}

func TestSESTransport_Deliver(t *testing.T) {
	var (
		mu   sync.Mutex
		path string
		body map[string]any
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		path = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"MessageId":"m-1"}`))
	}))
	defer srv.Close()

	tr, err := NewSES(context.Background(), SESConfig{Region: "us-east-1", AccessKey: "AKID", SecretKey: "SECRET", Endpoint: srv.URL})
	require.NoError(t, err)

	err = tr.Deliver(context.Background(), Email{From: "shop@example.com", To: "ada@example.com", Subject: "Hi", HTML: "<p>Hi</p>", Text: "Hi"})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "/v2/email/outbound-emails", path)
	assert.Equal(t, "shop@example.com", body["FromEmailAddress"])
}

// fakeSMTP accepts one message and records the DATA section.
func fakeSMTP(t *testing.T) (addr string, data <-chan string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	out := make(chan string, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		r := bufio.NewReader(conn)
		write := func(s string) { _, _ = io.WriteString(conn, s+"\r\n") }
		write("220 fake ready")
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				return
			}
			cmd := strings.ToUpper(strings.TrimSpace(line))
			switch {
			case strings.HasPrefix(cmd, "EHLO"), strings.HasPrefix(cmd, "HELO"):
				write("250 fake")
			case strings.HasPrefix(cmd, "MAIL"), strings.HasPrefix(cmd, "RCPT"):
				write("250 ok")
			case cmd == "DATA":
				write("354 go ahead")
				var sb strings.Builder
				for {
					l, err := r.ReadString('\n')
					if err != nil {
						return
					}
					if l == ".\r\n" {
						break
					}
					sb.WriteString(l)
				}
				out <- sb.String()
				write("250 queued")
			case cmd == "QUIT":
				write("221 bye")
				return
			default:
				write("250 ok")
			}
		}
	}()
	return ln.Addr().String(), out
}

func TestSMTPTransport_Deliver(t *testing.T) {
	addr, data := fakeSMTP(t)
	host, portStr, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	port, _ := strconv.Atoi(portStr)

	tr := NewSMTP(SMTPConfig{Host: host, Port: port})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = tr.Deliver(ctx, Email{From: "shop@example.com", To: "ada@example.com", Subject: "Order confirmed", HTML: "<p>paid</p>", Text: "paid"})
	require.NoError(t, err)

	select {
	case got := <-data:
		assert.Contains(t, got, "To: ada@example.com")
		assert.Contains(t, got, "multipart/alternative")
		assert.Contains(t, got, "<p>paid</p>")
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
	}
}

func TestSMTPTransport_DialFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().(*net.TCPAddr)
	ln.Close()

	tr := NewSMTP(SMTPConfig{Host: "127.0.0.1", Port: addr.Port})
	err = tr.Deliver(context.Background(), Email{From: "a@b.c", To: "d@e.f"})
	assert.Error(t, err)
}
