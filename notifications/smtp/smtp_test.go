package smtp

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/payments-backend/notifications"
	"github.com/vocdoni/payments-backend/test"
)

var testMail *Email

func TestMain(m *testing.M) {
	ctx := context.Background()
	container, err := test.StartMailService(ctx)
	if err != nil {
		panic(fmt.Sprintf("failed to start mail container: %v", err))
	}

	host, err := container.Host(ctx)
	if err != nil {
		panic(fmt.Sprintf("failed to get mail container host: %v", err))
	}
	smtpPort, err := container.MappedPort(ctx, test.MailSMTPPort)
	if err != nil {
		panic(fmt.Sprintf("failed to get mail container smtp port: %v", err))
	}
	apiPort, err := container.MappedPort(ctx, test.MailAPIPort)
	if err != nil {
		panic(fmt.Sprintf("failed to get mail container api port: %v", err))
	}

	testMail = &Email{}
	if err := testMail.New(&Config{
		FromName:    "Payments",
		FromAddress: "payments@example.com",
		SMTPServer:  host,
		SMTPPort:    smtpPort.Int(),
		TestAPIPort: apiPort.Int(),
	}); err != nil {
		panic(fmt.Sprintf("failed to init smtp service: %v", err))
	}

	code := m.Run()

	if err := container.Terminate(ctx); err != nil {
		panic(fmt.Sprintf("failed to stop mail container: %v", err))
	}
	os.Exit(code)
}

func TestSendNotification(t *testing.T) {
	c := qt.New(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	to := "alice" + strconv.FormatInt(time.Now().UnixNano(), 10) + "@example.com"
	err := testMail.SendNotification(ctx, &notifications.Notification{
		ToAddress: to,
		Subject:   "Payment receipt",
		Body:      "<p>Your card was charged 10.50 usd.</p>",
		PlainBody: "Your card was charged 10.50 usd.",
	})
	c.Assert(err, qt.IsNil)

	body, err := testMail.FindEmail(ctx, to)
	c.Assert(err, qt.IsNil)
	c.Assert(strings.Contains(body, "10.50"), qt.IsTrue)
}
