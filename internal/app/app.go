// Package app builds the infrastructure adapters shared by the binaries.
package app

import (
	"context"
	"log"

	"templatestore/internal/config"
	"templatestore/internal/events"
	"templatestore/internal/mail"
	"templatestore/internal/storage"
)

// NewMailer delivers through SES when a region is configured and SMTP
// otherwise.
func NewMailer(ctx context.Context, cfg config.MailConfig, logger *log.Logger) (*mail.Mailer, error) {
	var transport mail.Transport
	if cfg.UseSES() {
		ses, err := mail.NewSES(ctx, mail.SESConfig{
			Region:    cfg.SESRegion,
			AccessKey: cfg.SESAccessKey,
			SecretKey: cfg.SESSecretKey,
		})
		if err != nil {
			return nil, err
		}
		transport = ses
		logger.Printf("mail: using ses region=%s", cfg.SESRegion)
	} else {
		transport = mail.NewSMTP(mail.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
		})
		logger.Printf("mail: using smtp host=%s port=%d", cfg.SMTPHost, cfg.SMTPPort)
	}
	return mail.NewMailer(cfg.From, mail.DefaultTemplates(), transport, logger), nil
}

// NewBlobStore uses S3 when a bucket is configured and the local directory
// otherwise.
func NewBlobStore(ctx context.Context, cfg config.StorageConfig, logger *log.Logger) (storage.BlobStore, error) {
	if cfg.Bucket != "" {
		logger.Printf("storage: using s3 bucket=%s", cfg.Bucket)
		return storage.NewS3(ctx, storage.S3Config{Bucket: cfg.Bucket, Region: cfg.Region})
	}
	logger.Printf("storage: using disk dir=%s", cfg.Dir)
	return storage.NewDisk(cfg.Dir)
}

// NewPublisher returns a Kafka publisher, or a no-op one when no brokers are
// configured. The returned close func is always safe to call.
func NewPublisher(cfg config.KafkaConfig, logger *log.Logger) (events.Publisher, func() error) {
	if len(cfg.Brokers) == 0 {
		logger.Printf("events: no kafka brokers configured, events are dropped")
		return events.Nop{}, func() error { return nil }
	}
	p := events.NewKafkaPublisher(cfg.Brokers, cfg.Topic)
	logger.Printf("events: publishing to topic=%s", cfg.Topic)
	return p, p.Close
}
