// Package server implements the vault's wire protocol: one HTTP POST
// endpoint multiplexing handshakes, the seed-auth exchange and the opaque
// blob commands, with per-connection AEAD channels.
package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/hashvault/hashvault/internal/auth"
	"github.com/hashvault/hashvault/internal/crypto"
	"github.com/hashvault/hashvault/internal/observability"
	"github.com/hashvault/hashvault/internal/ratelimit"
	"github.com/hashvault/hashvault/internal/wire"
)

const maxRequestBytes = 32 << 20

// Server handles the vault protocol. It owns one ECDH keypair for its whole
// lifetime; every connection derives its channel keys against it.
type Server struct {
	keys     *crypto.KeyPair
	jwk      crypto.JWK
	sessions *SessionStore
	users    auth.UserStore
	blobs    *BlobStore
	log      *observability.Logger
	metrics  *observability.Metrics
	tracer   trace.Tracer
	limiter  *ratelimit.Limiter
}

// New creates a server with a fresh process-lifetime keypair.
func New(users auth.UserStore, blobs *BlobStore, log *observability.Logger, metrics *observability.Metrics) (*Server, error) {
	keys, err := crypto.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	return &Server{
		keys:     keys,
		jwk:      crypto.MarshalJWK(keys.Public),
		sessions: NewSessionStore(),
		users:    users,
		blobs:    blobs,
		log:      log,
		metrics:  metrics,
		tracer:   otel.Tracer("github.com/hashvault/hashvault/internal/server"),
	}, nil
}

// Sessions exposes the live connection table for reaping and health checks.
func (s *Server) Sessions() *SessionStore { return s.sessions }

// SetRateLimit enables per-address request throttling. Nil (the default)
// disables it.
func (s *Server) SetRateLimit(l *ratelimit.Limiter) { s.limiter = l }

// ServeHTTP is the single protocol endpoint. Any error from dispatch
// degrades to a generic error body rather than crashing or leaking detail.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if s.limiter != nil && !s.limiter.Allow(remoteHost(r.RemoteAddr)) {
		s.metrics.RequestsThrottled.Inc()
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, "Unknown error")
		return
	}

	start := time.Now()
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		s.writeError(w, "", err)
		return
	}
	req, err := wire.Decode(body)
	if err != nil {
		s.writeError(w, "", err)
		return
	}

	ctx, span := s.tracer.Start(r.Context(), "handle_request",
		trace.WithAttributes(attribute.String("command", req.Command)))
	defer span.End()

	result, err := s.handleCommand(ctx, req, r.RemoteAddr)
	s.metrics.RequestDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		s.writeError(w, req.Command, err)
		return
	}
	s.metrics.RequestsTotal.WithLabelValues(req.Command, "ok").Inc()

	out, err := json.Marshal(result)
	if err != nil {
		s.writeError(w, req.Command, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(out)
}

func (s *Server) writeError(w http.ResponseWriter, command string, err error) {
	if command == "" {
		command = "invalid"
	}
	s.metrics.RequestsTotal.WithLabelValues(command, "error").Inc()
	s.log.Error(err, "request failed")
	// Deliberately generic: the caller learns nothing about what went wrong.
	_, _ = io.WriteString(w, "Unknown error")
}

// remoteHost strips the port so one peer gets one bucket regardless of
// ephemeral source ports.
func remoteHost(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}

func (s *Server) handleCommand(ctx context.Context, req *wire.Request, remoteAddr string) (any, error) {
	switch req.Command {
	case wire.CmdEcho:
		return req.Data, nil

	case wire.CmdNewConnection:
		if req.PublicKey == nil {
			return nil, fmt.Errorf("new_connection missing public_key")
		}
		clientKey, err := crypto.UnmarshalJWK(*req.PublicKey)
		if err != nil {
			return nil, err
		}
		keys, err := crypto.DeriveChannelKeys(s.keys.Private, clientKey, true)
		if err != nil {
			return nil, err
		}
		sess := s.sessions.Add(keys)
		s.metrics.ConnectionsTotal.Inc()
		s.metrics.ConnectionsActive.Set(float64(s.sessions.Len()))
		s.log.ConnectionOpened(sess.ID, remoteAddr)
		return wire.NewConnectionResponse{PublicKey: s.jwk, ID: sess.ID}, nil

	case wire.CmdEncrypted:
		return s.handleEncrypted(req)

	default:
		// Inner commands must travel inside the encrypted envelope.
		return nil, fmt.Errorf("command %q not valid at top level", req.Command)
	}
}

func (s *Server) handleEncrypted(req *wire.Request) (any, error) {
	if req.ID == nil {
		return nil, fmt.Errorf("encrypted message missing connection id")
	}
	sess, ok := s.sessions.Get(*req.ID)
	if !ok {
		s.metrics.UnknownConnections.Inc()
		return nil, fmt.Errorf("%w: id %d", ErrUnknownConnection, *req.ID)
	}
	sess.Touch()

	iv, err := base64.StdEncoding.DecodeString(req.IV)
	if err != nil {
		return nil, fmt.Errorf("%w: bad iv: %v", crypto.ErrDecryptionFailure, err)
	}
	tag, err := base64.StdEncoding.DecodeString(req.Tag)
	if err != nil {
		return nil, fmt.Errorf("%w: bad tag: %v", crypto.ErrDecryptionFailure, err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(req.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: bad ciphertext: %v", crypto.ErrDecryptionFailure, err)
	}

	plaintext, err := crypto.Open(sess.Keys.Decode, iv, ciphertext, tag)
	if err != nil {
		s.metrics.DecryptFailures.Inc()
		s.log.DecryptFailed(sess.ID, err)
		return nil, err
	}

	inner, err := wire.Decode(plaintext)
	if err != nil {
		return nil, err
	}
	result, err := s.handleSession(inner, sess)
	if err != nil {
		return nil, err
	}

	response, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	ivOut, ctOut, tagOut, err := crypto.Seal(sess.Keys.Encode, response)
	if err != nil {
		return nil, err
	}
	return wire.EncryptedResponse{
		Command:    wire.CmdEncrypted,
		IV:         base64.StdEncoding.EncodeToString(ivOut),
		Ciphertext: base64.StdEncoding.EncodeToString(ctOut),
		Tag:        base64.StdEncoding.EncodeToString(tagOut),
	}, nil
}

// handleSession dispatches a decrypted inner command. Commands that require
// verification are silently dropped (null response) when the session has not
// proven seed knowledge; callers must treat no response as not authorized.
func (s *Server) handleSession(req *wire.Request, sess *Session) (any, error) {
	switch req.Command {
	case wire.CmdEcho:
		return req.Data, nil

	case wire.CmdGetSeed:
		return s.handleGetSeed(req, sess)

	case wire.CmdProveSeed:
		return s.handleProveSeed(req, sess)

	case wire.CmdGetFile, wire.CmdSaveFile, wire.CmdDeleteFile:
		username, verified := sess.State()
		if !verified {
			return nil, nil
		}
		return s.handleFileCommand(req, username)

	default:
		return nil, fmt.Errorf("command %q not valid inside channel", req.Command)
	}
}

func (s *Server) handleGetSeed(req *wire.Request, sess *Session) (any, error) {
	if !safeSegment(req.Username) {
		return nil, fmt.Errorf("invalid username %q", req.Username)
	}
	user, ok, err := s.users.Get(req.Username)
	if err != nil {
		return nil, err
	}
	created := false
	if !ok {
		user, err = auth.NewUser(req.Username)
		if err != nil {
			return nil, err
		}
		if err := s.users.Put(user); err != nil {
			return nil, err
		}
		created = true
	}
	sess.Bind(req.Username)
	s.log.SeedIssued(sess.ID, req.Username, created)
	return user.Seed, nil
}

func (s *Server) handleProveSeed(req *wire.Request, sess *Session) (any, error) {
	username, _ := sess.State()
	if username == "" {
		return nil, nil
	}
	user, ok, err := s.users.Get(username)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	// Trust-on-first-use: the first proof presented for a fresh user is
	// accepted and fixed permanently.
	if user.HashedSeed == "" {
		user.HashedSeed = req.HashedSeed
		if err := s.users.Put(user); err != nil {
			return nil, err
		}
		sess.Verify()
		s.metrics.ProofsTotal.WithLabelValues("first_use").Inc()
		s.log.ProofChecked(sess.ID, username, true, true)
		return wire.StatusResponse{Status: wire.StatusSuccess}, nil
	}
	if user.HashedSeed == req.HashedSeed {
		sess.Verify()
		s.metrics.ProofsTotal.WithLabelValues("accepted").Inc()
		s.log.ProofChecked(sess.ID, username, true, false)
		return wire.StatusResponse{Status: wire.StatusSuccess}, nil
	}
	s.metrics.ProofsTotal.WithLabelValues("rejected").Inc()
	s.log.ProofChecked(sess.ID, username, false, false)
	return nil, nil
}

func (s *Server) handleFileCommand(req *wire.Request, username string) (any, error) {
	user, ok, err := s.users.Get(username)
	if err != nil {
		return nil, err
	}
	if ok {
		user.LastOnline = time.Now().UnixMilli()
		if err := s.users.Put(user); err != nil {
			return nil, err
		}
	}

	switch req.Command {
	case wire.CmdGetFile:
		data, ok, err := s.blobs.Get(username, req.FileName)
		if err != nil {
			return nil, err
		}
		if !ok {
			return wire.StatusResponse{Status: wire.StatusNoFile}, nil
		}
		return wire.StatusResponse{Status: wire.StatusSuccess, File: data}, nil

	case wire.CmdSaveFile:
		var data string
		if err := json.Unmarshal(req.Data, &data); err != nil {
			return nil, fmt.Errorf("save_file data must be a string: %w", err)
		}
		if err := s.blobs.Put(username, req.FileName, data); err != nil {
			return nil, err
		}
		s.metrics.BlobsStoredTotal.Inc()
		s.metrics.BlobBytesWritten.Add(float64(len(data)))
		s.log.BlobSaved(username, req.FileName, len(data))
		return wire.StatusResponse{Status: wire.StatusSuccess}, nil

	case wire.CmdDeleteFile:
		if err := s.blobs.Delete(username, req.FileName); err != nil {
			return nil, err
		}
		s.metrics.BlobsDeletedTotal.Inc()
		s.log.BlobDeleted(username, req.FileName)
		return wire.StatusResponse{Status: wire.StatusSuccess}, nil
	}
	return nil, nil
}
