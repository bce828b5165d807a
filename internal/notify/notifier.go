// Package notify sends admin alerts for lockouts and suspicious activity.
// Alerts follow the same rule as audit writes: strictly best-effort, a send
// failure is counted and logged but never reaches the request path.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"

	"github.com/campusfair/gatekeeper/internal/metrics"
)

const sendTimeout = 10 * time.Second

// Notifier delivers security alerts to event administrators.
type Notifier interface {
	Lockout(identifier, scope string, until time.Time)
	SuspiciousActivity(ipAddress string, failureCount int)
}

// NoopNotifier is used when alerting is not configured.
type NoopNotifier struct{}

func (NoopNotifier) Lockout(string, string, time.Time) {}

func (NoopNotifier) SuspiciousActivity(string, int) {}

// SESNotifier sends alert emails through AWS SES.
type SESNotifier struct {
	client      *ses.Client
	fromAddress string
	recipients  []string
	logger      *slog.Logger
}

// NewSESNotifier creates an SESNotifier.
func NewSESNotifier(region, fromAddress string, recipients []string, logger *slog.Logger) (*SESNotifier, error) {
	cfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &SESNotifier{
		client:      ses.NewFromConfig(cfg),
		fromAddress: fromAddress,
		recipients:  recipients,
		logger:      logger,
	}, nil
}

func (n *SESNotifier) Lockout(identifier, scope string, until time.Time) {
	subject := "Career fair security alert: account lockout"
	body := fmt.Sprintf(
		"A %s-scope identifier was locked out after repeated failed logins.\n\nIdentifier: %s\nLocked until: %s\n",
		scope, identifier, until.UTC().Format(time.RFC3339),
	)
	n.send(subject, body)
}

func (n *SESNotifier) SuspiciousActivity(ipAddress string, failureCount int) {
	subject := "Career fair security alert: suspicious activity"
	body := fmt.Sprintf(
		"Suspicious request pattern detected.\n\nSource IP: %s\nRecent failures: %d\n",
		ipAddress, failureCount,
	)
	n.send(subject, body)
}

// send delivers on its own goroutine so alerting never delays a request.
func (n *SESNotifier) send(subject, body string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		defer cancel()

		_, err := n.client.SendEmail(ctx, &ses.SendEmailInput{
			Source: aws.String(n.fromAddress),
			Destination: &types.Destination{
				ToAddresses: n.recipients,
			},
			Message: &types.Message{
				Subject: &types.Content{Data: aws.String(subject)},
				Body: &types.Body{
					Text: &types.Content{Data: aws.String(body)},
				},
			},
		})
		if err != nil {
			metrics.AlertFailuresTotal.Inc()
			n.logger.Error("failed to send admin alert",
				slog.String("subject", subject),
				slog.String("recipients", strings.Join(n.recipients, ",")),
				slog.Any("error", err),
			)
		}
	}()
}
