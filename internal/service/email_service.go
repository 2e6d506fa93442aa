package service

import (
	"context"
	"fmt"
	"html"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"go.uber.org/zap"

	"storysage/internal/logging"
	"storysage/internal/models"
)

// emailSender is the subset of the SES client used to send mail
type emailSender interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

const (
	emailQueueSize   = 32
	emailSendTimeout = 15 * time.Second
)

type emailJob struct {
	kind string
	send func(ctx context.Context) error
}

// EmailService sends listening notifications to a parent address via Amazon SES.
// Notifications queued with Enqueue are sent in order by one background
// worker, each bounded by sendTimeout.
type EmailService struct {
	client      emailSender
	fromEmail   string
	fromName    string
	notifyTo    string
	enabled     bool
	sendTimeout time.Duration
	logger      *zap.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan emailJob
	done   chan struct{}
}

// NewEmailService creates a new email service. Without a sender or a
// recipient address the service is disabled and every send is skipped.
func NewEmailService(ctx context.Context, awsRegion, fromEmail, fromName, notifyTo string, logger *zap.Logger) (*EmailService, error) {
	logger = logging.OrNop(logger)

	if fromEmail == "" || notifyTo == "" {
		logger.Info("email notifications disabled: SES_FROM_EMAIL or NOTIFY_EMAIL not configured")
		return &EmailService{enabled: false, logger: logger}, nil
	}

	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(awsRegion))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	logger.Info("email notifications enabled",
		zap.String("from", fromEmail),
		zap.String("region", awsRegion))

	return newEmailService(sesv2.NewFromConfig(cfg), fromEmail, fromName, notifyTo, logger), nil
}

func newEmailService(client emailSender, fromEmail, fromName, notifyTo string, logger *zap.Logger) *EmailService {
	s := &EmailService{
		client:      client,
		fromEmail:   fromEmail,
		fromName:    fromName,
		notifyTo:    notifyTo,
		enabled:     true,
		sendTimeout: emailSendTimeout,
		logger:      logging.OrNop(logger),
		queue:       make(chan emailJob, emailQueueSize),
		done:        make(chan struct{}),
	}
	go s.run()
	return s
}

// Enqueue schedules send on the background worker and returns immediately.
// When the queue is full or the service is closed the message is dropped.
func (s *EmailService) Enqueue(kind string, send func(ctx context.Context) error) {
	if !s.IsEnabled() {
		return
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		s.logger.Warn("email service closed, dropping message", zap.String("kind", kind))
		return
	}
	select {
	case s.queue <- emailJob{kind: kind, send: send}:
	default:
		s.logger.Warn("email queue full, dropping message", zap.String("kind", kind))
	}
}

// Close stops accepting messages and waits for queued ones to be sent.
func (s *EmailService) Close() {
	if !s.IsEnabled() {
		return
	}
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
	s.mu.Unlock()
	<-s.done
}

func (s *EmailService) run() {
	defer close(s.done)
	for job := range s.queue {
		ctx, cancel := context.WithTimeout(context.Background(), s.sendTimeout)
		if err := job.send(ctx); err != nil {
			s.logger.Warn("failed to send email", zap.String("kind", job.kind), zap.Error(err))
		}
		cancel()
	}
}

// IsEnabled returns whether the email service is enabled
func (s *EmailService) IsEnabled() bool {
	return s != nil && s.enabled
}

// SendStoryCompleted tells the parent that a story was listened to the end
func (s *EmailService) SendStoryCompleted(ctx context.Context, userID string, story models.Story) error {
	if !s.IsEnabled() {
		return nil
	}

	subject := fmt.Sprintf("Story finished: %s", story.Title)
	lessons := ""
	for _, lesson := range story.KeyLessons {
		lessons += "<li>" + html.EscapeString(lesson) + "</li>"
	}
	htmlBody := fmt.Sprintf(`
<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"></head>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
	<h2>%s was finished!</h2>
	<p>Listener <strong>%s</strong> just listened to the whole story (%s).</p>
	<p>%s</p>
	<ul>%s</ul>
	<p style="font-size: 12px; color: #666;">This is an automated message from StorySage. Please do not reply.</p>
</body>
</html>
`, html.EscapeString(story.Title), html.EscapeString(userID), story.FormattedDuration(),
		html.EscapeString(story.Description), lessons)

	textBody := fmt.Sprintf(`%s was finished!

Listener %s just listened to the whole story (%s).

%s

---
This is an automated message from StorySage. Please do not reply.
`, story.Title, userID, story.FormattedDuration(), story.Description)

	return s.sendEmail(ctx, subject, htmlBody, textBody)
}

// SendAchievementUnlocked tells the parent about a new badge
func (s *EmailService) SendAchievementUnlocked(ctx context.Context, userID string, a models.Achievement) error {
	if !s.IsEnabled() {
		return nil
	}

	subject := fmt.Sprintf("New badge unlocked: %s", a.Title)
	htmlBody := fmt.Sprintf(`
<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"></head>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
	<h2>%s %s</h2>
	<p>Listener <strong>%s</strong> unlocked a new badge: %s</p>
	<p style="font-size: 12px; color: #666;">This is an automated message from StorySage. Please do not reply.</p>
</body>
</html>
`, html.EscapeString(a.Icon), html.EscapeString(a.Title), html.EscapeString(userID), html.EscapeString(a.Description))

	textBody := fmt.Sprintf(`%s

Listener %s unlocked a new badge: %s

---
This is an automated message from StorySage. Please do not reply.
`, a.Title, userID, a.Description)

	return s.sendEmail(ctx, subject, htmlBody, textBody)
}

// sendEmail sends an email using Amazon SES
func (s *EmailService) sendEmail(ctx context.Context, subject, htmlBody, textBody string) error {
	fromAddress := s.fromEmail
	if s.fromName != "" {
		fromAddress = fmt.Sprintf("%s <%s>", s.fromName, s.fromEmail)
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{s.notifyTo},
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{
					Data:    aws.String(subject),
					Charset: aws.String("UTF-8"),
				},
				Body: &types.Body{
					Html: &types.Content{
						Data:    aws.String(htmlBody),
						Charset: aws.String("UTF-8"),
					},
					Text: &types.Content{
						Data:    aws.String(textBody),
						Charset: aws.String("UTF-8"),
					},
				},
			},
		},
	}

	result, err := s.client.SendEmail(ctx, input)
	if err != nil {
		return fmt.Errorf("failed to send email to %s: %w", s.notifyTo, err)
	}

	fields := []zap.Field{zap.String("to", s.notifyTo), zap.String("subject", subject)}
	if result != nil && result.MessageId != nil {
		fields = append(fields, zap.String("message_id", *result.MessageId))
	}
	s.logger.Info("email sent", fields...)
	return nil
}
