package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"

	"aura/internal/config"
	"aura/internal/notify"
	"aura/internal/queue"
	"aura/internal/store"
)

// The worker drains notification jobs and turns them into email. Every
// failure is logged and dropped; nothing here may back up into the
// ingestion path.
func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	redisClient := store.NewRedis(cfg.RedisAddr)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, queue.DefaultKey)
	}

	var sender notify.Sender
	if cfg.SMTPHost != "" {
		sender = notify.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.MailFrom)
		log.Printf("mail via %s:%d as %s", cfg.SMTPHost, cfg.SMTPPort, cfg.MailFrom)
	} else {
		sender = notify.LogSender{}
		log.Println("SMTP_HOST not set, logging mail instead of sending")
	}

	messages, err := q.Consume(ctx)
	if err != nil {
		log.Fatalf("queue consume init failed: %v", err)
	}

	log.Println("worker started, waiting for notification jobs...")
	for msg := range messages {
		if msg.Type != notify.MessageType {
			continue
		}
		var job notify.Job
		if err := json.Unmarshal(msg.Body, &job); err != nil {
			log.Printf("bad job payload: %v", err)
			continue
		}
		subject, body, ok := notify.BuildEmail(job)
		if !ok {
			log.Printf("unknown job kind %q, dropping", job.Kind)
			continue
		}
		recipients := notify.Recipients(job, cfg.HeadEmails)
		if len(recipients) == 0 {
			continue
		}
		if err := sender.Send(ctx, subject, body, recipients); err != nil {
			log.Printf("send %q to %v failed: %v", subject, recipients, err)
			continue
		}
		log.Printf("sent %q to %v", subject, recipients)
	}

	log.Println("worker stopped")
}
