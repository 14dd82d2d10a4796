package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/clinicflow/clinicflow/internal/config"
	"github.com/clinicflow/clinicflow/internal/platform/auth"
	"github.com/clinicflow/clinicflow/internal/platform/db"
	"github.com/clinicflow/clinicflow/internal/platform/events"
	"github.com/clinicflow/clinicflow/internal/platform/notification"
)

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	prodLog := newLogger("production", &buf)
	prodLog.Info().Msg("hello")
	if !strings.HasPrefix(buf.String(), "{") {
		t.Errorf("expected JSON output in production, got %q", buf.String())
	}

	buf.Reset()
	devLog := newLogger("development", &buf)
	devLog.Info().Msg("hello")
	if strings.HasPrefix(buf.String(), "{") || !strings.Contains(buf.String(), "hello") {
		t.Errorf("expected console output in development, got %q", buf.String())
	}
}

func TestPrintMigrationStatus(t *testing.T) {
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	var buf bytes.Buffer
	printMigrationStatus(&buf, []db.MigrationStatus{
		{Version: 1, Name: "init", Applied: true, AppliedAt: &at},
		{Version: 2, Name: "reminder_claims"},
	})
	out := buf.String()
	if !strings.Contains(out, "2024-03-01 12:00:00") {
		t.Errorf("expected applied time in output:\n%s", out)
	}
	if !strings.Contains(out, "pending") {
		t.Errorf("expected pending migration in output:\n%s", out)
	}
}

func TestNewSMSSender(t *testing.T) {
	log := zerolog.Nop()

	if _, ok := newSMSSender(&config.Config{SMSGatewayURL: "http://sms"}, log).(*notification.HTTPSMSGateway); !ok {
		t.Error("expected the HTTP gateway when a URL is configured")
	}
	if _, ok := newSMSSender(&config.Config{Env: "development"}, log).(notification.LogSender); !ok {
		t.Error("expected the log sender in development")
	}
	if _, ok := newSMSSender(&config.Config{Env: "production"}, log).(notification.Unconfigured); !ok {
		t.Error("expected an unconfigured sender in production")
	}
}

func TestNewEmailSender(t *testing.T) {
	log := zerolog.Nop()
	awsCfg := aws.Config{Region: "eu-west-1"}

	if _, ok := newEmailSender(&config.Config{EmailQueueURL: "https://sqs/q"}, &awsCfg, log).(*notification.SQSEmailSender); !ok {
		t.Error("expected the SQS sender when a queue is configured")
	}
	if _, ok := newEmailSender(&config.Config{Env: "development", EmailQueueURL: "https://sqs/q"}, nil, log).(notification.LogSender); !ok {
		t.Error("expected the log sender without AWS config in development")
	}
	if _, ok := newEmailSender(&config.Config{Env: "staging"}, nil, log).(notification.Unconfigured); !ok {
		t.Error("expected an unconfigured sender")
	}
}

func TestNewPublisher(t *testing.T) {
	if _, ok := newPublisher(&config.Config{}, zerolog.Nop()).(events.NopPublisher); !ok {
		t.Error("expected the nop publisher without brokers")
	}
	p := newPublisher(&config.Config{KafkaBrokers: []string{"localhost:9092"}, KafkaTopic: "t"}, zerolog.Nop())
	defer p.Close()
	if _, ok := p.(*events.KafkaPublisher); !ok {
		t.Error("expected the kafka publisher with brokers")
	}
}

func serve(e *echo.Echo, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestNewEcho_Health(t *testing.T) {
	e, _ := newEcho(&config.Config{Env: "development"}, zerolog.Nop())

	rec := serve(e, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("expected security headers")
	}
	if rec.Header().Get(echo.HeaderXRequestID) == "" {
		t.Error("expected a request id")
	}
}

func TestNewEcho_DevAuth(t *testing.T) {
	e, api := newEcho(&config.Config{Env: "development"}, zerolog.Nop())
	api.GET("/whoami", func(c echo.Context) error {
		return c.String(http.StatusOK, auth.UserIDFromContext(c.Request().Context()))
	})

	rec := serve(e, httptest.NewRequest(http.MethodGet, "/api/v1/whoami", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "dev-user" {
		t.Errorf("expected dev-user, got %d %q", rec.Code, rec.Body.String())
	}
}

func TestNewEcho_RequiresTokenOutsideDev(t *testing.T) {
	e, api := newEcho(&config.Config{Env: "production", AuthSigningKey: "secret"}, zerolog.Nop())
	api.GET("/whoami", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	rec := serve(e, httptest.NewRequest(http.MethodGet, "/api/v1/whoami", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without a token, got %d", rec.Code)
	}

	// Liveness stays public.
	rec = serve(e, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("expected public health check, got %d", rec.Code)
	}
}

func TestCommands(t *testing.T) {
	names := func(cmds []*cobra.Command) map[string]bool {
		out := make(map[string]bool)
		for _, c := range cmds {
			out[c.Name()] = true
		}
		return out
	}

	migrate := names(migrateCmd().Commands())
	if !migrate["up"] || !migrate["status"] {
		t.Errorf("expected migrate up and status, got %v", migrate)
	}
	if !names(remindersCmd().Commands())["dispatch"] {
		t.Error("expected reminders dispatch")
	}
}
