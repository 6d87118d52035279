// Package mail provides [authcore.Mailer] implementations.
//
// [SMTPMailer] delivers HTML messages through an SMTP relay. [LogMailer]
// writes each message to a slog.Logger and is meant for local development,
// where the verification code is read from the log.
//
// Message bodies are rendered by the engine; this package only transports
// them.
package mail
