package observability

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger wraps zerolog for structured logging.
type Logger struct {
	logger zerolog.Logger
}

// NewLogger creates a new structured logger.
func NewLogger(service, version string, output io.Writer) *Logger {
	if output == nil {
		output = os.Stdout
	}

	zerolog.TimeFieldFormat = time.RFC3339

	logger := zerolog.New(output).With().
		Timestamp().
		Str("service", service).
		Str("version", version).
		Str("host", getHostname()).
		Logger()

	return &Logger{logger: logger}
}

// Nop returns a logger that discards everything, for tests.
func Nop() *Logger {
	return &Logger{logger: zerolog.Nop()}
}

// WithConnection adds connection_id context to logger.
func (l *Logger) WithConnection(id int) *Logger {
	return &Logger{logger: l.logger.With().Int("connection_id", id).Logger()}
}

// WithUser adds username context to logger.
func (l *Logger) WithUser(username string) *Logger {
	return &Logger{logger: l.logger.With().Str("username", username).Logger()}
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string) {
	l.logger.Debug().Msg(msg)
}

// Info logs an info message.
func (l *Logger) Info(msg string) {
	l.logger.Info().Msg(msg)
}

// Warn logs a warning message.
func (l *Logger) Warn(msg string) {
	l.logger.Warn().Msg(msg)
}

// Error logs an error message.
func (l *Logger) Error(err error, msg string) {
	l.logger.Error().Err(err).Msg(msg)
}

// Fatal logs a fatal message and exits.
func (l *Logger) Fatal(err error, msg string) {
	l.logger.Fatal().Err(err).Msg(msg)
}

// ConnectionOpened logs a completed handshake.
func (l *Logger) ConnectionOpened(id int, remoteAddr string) {
	l.logger.Info().
		Int("connection_id", id).
		Str("remote_addr", remoteAddr).
		Msg("connection established")
}

// SeedIssued logs seed issuance, flagging first-time registrations.
func (l *Logger) SeedIssued(id int, username string, created bool) {
	l.logger.Info().
		Int("connection_id", id).
		Str("username", username).
		Bool("created", created).
		Msg("seed issued")
}

// ProofChecked logs the outcome of a prove_seed attempt.
func (l *Logger) ProofChecked(id int, username string, accepted, firstUse bool) {
	l.logger.Info().
		Int("connection_id", id).
		Str("username", username).
		Bool("accepted", accepted).
		Bool("first_use", firstUse).
		Msg("seed proof checked")
}

// DecryptFailed logs a transport AEAD failure.
func (l *Logger) DecryptFailed(id int, err error) {
	l.logger.Error().
		Int("connection_id", id).
		Err(err).
		Msg("message decryption failed")
}

// BlobSaved logs a blob write.
func (l *Logger) BlobSaved(username, name string, size int) {
	l.logger.Debug().
		Str("username", username).
		Str("blob", name).
		Int("size", size).
		Msg("blob saved")
}

// BlobDeleted logs a blob removal.
func (l *Logger) BlobDeleted(username, name string) {
	l.logger.Debug().
		Str("username", username).
		Str("blob", name).
		Msg("blob deleted")
}

// SessionsReaped logs an idle-session sweep.
func (l *Logger) SessionsReaped(count int, maxAge time.Duration) {
	if count == 0 {
		return
	}
	l.logger.Info().
		Int("count", count).
		Dur("max_age", maxAge).
		Msg("idle connections reaped")
}

func getHostname() string {
	hostname, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return hostname
}
