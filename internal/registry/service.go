// Package registry implements the account-claim state machine: it validates
// claims, drives status transitions, writes the audit trail, and pushes
// change events to the review hub. It holds explicit references to its
// collaborators; nothing is looked up ambiently.
package registry

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/google/uuid"

	"github.com/kitemc/verifyd/internal/authme"
	"github.com/kitemc/verifyd/internal/hub"
	"github.com/kitemc/verifyd/internal/models"
	"github.com/kitemc/verifyd/internal/store"
	"github.com/kitemc/verifyd/internal/verify"
	"github.com/kitemc/verifyd/pkg/crypto"
	apperrors "github.com/kitemc/verifyd/pkg/errors"
	"github.com/kitemc/verifyd/pkg/logger"
	pkgmail "github.com/kitemc/verifyd/pkg/mail"
	"github.com/kitemc/verifyd/pkg/metrics"
)

// ActorSystem attributes audit entries written without an admin actor.
const ActorSystem = "system"

var defaultUsernameRule = regexp.MustCompile(`^[A-Za-z0-9_]{3,16}$`)

// Config carries the startup parameters of the state machine. Nothing here
// is re-read mid-operation.
type Config struct {
	// AutoApprove promotes a claim to approved as soon as its code is
	// confirmed, instead of waiting for an admin.
	AutoApprove bool
	// UsernameRule constrains claimable usernames. Nil selects the default
	// 3-16 character word rule.
	UsernameRule *regexp.Regexp
}

// Option customises the Service.
type Option func(*Service)

// WithMailer attaches the outbound mail collaborator.
func WithMailer(m pkgmail.Mailer) Option {
	return func(s *Service) { s.mailer = m }
}

// WithSyncer attaches the legacy-store sync collaborator.
func WithSyncer(sync authme.Syncer) Option {
	return func(s *Service) {
		if sync != nil {
			s.syncer = sync
		}
	}
}

// WithClock injects a custom time source.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		if clock != nil {
			s.now = clock
		}
	}
}

// CodeDelivery is the payload handed to the mail collaborator after a
// registration: the minted code and its deadline.
type CodeDelivery struct {
	Email     string
	Code      string
	ExpiresAt time.Time
}

// Service drives claim registrations through review.
type Service struct {
	mu sync.Mutex

	users   store.UserStore
	audits  store.AuditStore
	codes   *verify.Manager
	reviews *hub.Hub
	mailer  pkgmail.Mailer
	syncer  authme.Syncer

	autoApprove  bool
	usernameRule *regexp.Regexp
	now          func() time.Time
	log          *zap.Logger
}

// NewService wires the state machine to its storage, code manager, and hub.
func NewService(users store.UserStore, audits store.AuditStore, codes *verify.Manager, reviews *hub.Hub, cfg Config, opts ...Option) (*Service, error) {
	if users == nil {
		return nil, errors.New("registry: user store is required")
	}
	if audits == nil {
		return nil, errors.New("registry: audit store is required")
	}
	if codes == nil {
		return nil, errors.New("registry: code manager is required")
	}
	if reviews == nil {
		return nil, errors.New("registry: review hub is required")
	}

	rule := cfg.UsernameRule
	if rule == nil {
		rule = defaultUsernameRule
	}

	s := &Service{
		users:        users,
		audits:       audits,
		codes:        codes,
		reviews:      reviews,
		syncer:       authme.Noop{},
		autoApprove:  cfg.AutoApprove,
		usernameRule: rule,
		now:          time.Now,
		log:          logger.WithModule("registry"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Register creates a pending claim and mints its verification code. The
// returned delivery payload is also handed to the mail collaborator here;
// delivery failure is logged, never fatal.
func (s *Service) Register(ctx context.Context, username, email string) (*models.UserRecord, *CodeDelivery, error) {
	username = strings.TrimSpace(username)
	email = strings.ToLower(strings.TrimSpace(email))

	if !s.usernameRule.MatchString(username) {
		return nil, nil, apperrors.NewBadRequest("username does not satisfy the claim rules")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, nil, apperrors.NewBadRequest("email address is invalid")
	}

	record, delivery, err := s.registerLocked(ctx, username, email)
	if err != nil {
		return nil, nil, err
	}

	// Delivery happens after the critical section: a slow SMTP dial must
	// never hold up reviewer mutations.
	s.deliverCode(ctx, delivery)

	metrics.Registrations.WithLabelValues("created").Inc()
	return record, delivery, nil
}

func (s *Service) registerLocked(ctx context.Context, username, email string) (*models.UserRecord, *CodeDelivery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	record := &models.UserRecord{
		ID:                 uuid.NewString(),
		Username:           username,
		UsernameKey:        models.NormalizeUsername(username),
		Email:              email,
		Status:             models.StatusPending,
		CreatedAt:          now,
		LastStatusChangeAt: now,
	}

	if err := s.users.RegisterUser(ctx, record); err != nil {
		if errors.Is(err, apperrors.ErrConflict) {
			metrics.Registrations.WithLabelValues("conflict").Inc()
			return nil, nil, apperrors.ErrConflict
		}
		metrics.Registrations.WithLabelValues("error").Inc()
		return nil, nil, err
	}
	if err := s.commit(ctx); err != nil {
		metrics.Registrations.WithLabelValues("error").Inc()
		return nil, nil, err
	}

	if err := s.audit(ctx, models.AuditRegister, ActorSystem, record.ID, "username="+username); err != nil {
		return nil, nil, err
	}

	code, expires, err := s.codes.Issue(record.Email)
	if err != nil {
		return nil, nil, fmt.Errorf("registry: issue code: %w", err)
	}
	if err := s.audit(ctx, models.AuditCodeIssued, ActorSystem, record.ID, ""); err != nil {
		return nil, nil, err
	}

	s.reviews.Publish(hub.Event{
		Type:      hub.EventRegistered,
		AccountID: record.ID,
		Username:  record.Username,
		NewStatus: record.Status,
		Timestamp: now,
	})

	delivery := &CodeDelivery{Email: record.Email, Code: code, ExpiresAt: expires}
	return record, delivery, nil
}

// ConfirmCode consumes a verification code. Confirmation proves mailbox
// ownership; it changes status only when auto-approve is configured.
func (s *Service) ConfirmCode(ctx context.Context, identity, code string) (*models.UserRecord, error) {
	record, promoted, err := s.confirmLocked(ctx, identity, code)
	if err != nil {
		return nil, err
	}
	if promoted {
		s.syncLegacyStore(ctx, record)
	}
	return record, nil
}

func (s *Service) confirmLocked(ctx context.Context, identity, code string) (*models.UserRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, err := s.resolveClaim(ctx, identity)
	if err != nil {
		return nil, false, err
	}

	// Codes are always keyed by the claim email, whichever identity form
	// the caller submitted.
	if err := s.codes.Verify(record.Email, code); err != nil {
		metrics.CodeVerifications.WithLabelValues(verifyResult(err)).Inc()
		if auditErr := s.audit(ctx, models.AuditCodeFailed, ActorSystem, record.ID, verifyResult(err)); auditErr != nil {
			return nil, false, auditErr
		}
		return nil, false, err
	}

	metrics.CodeVerifications.WithLabelValues("ok").Inc()
	if err := s.audit(ctx, models.AuditCodeVerified, ActorSystem, record.ID, ""); err != nil {
		return nil, false, err
	}

	s.reviews.Publish(hub.Event{
		Type:      hub.EventConfirmed,
		AccountID: record.ID,
		Username:  record.Username,
		OldStatus: record.Status,
		NewStatus: record.Status,
		Timestamp: s.now().UTC(),
	})

	if s.autoApprove && record.Status == models.StatusPending {
		promoted, err := s.setStatusLocked(ctx, record, models.StatusApproved, ActorSystem)
		if err != nil {
			return nil, false, err
		}
		return promoted, true, nil
	}
	return record, false, nil
}

// SetStatus applies an admin review decision.
func (s *Service) SetStatus(ctx context.Context, accountID string, newStatus models.Status, actor string) (*models.UserRecord, error) {
	if !newStatus.Valid() {
		return nil, apperrors.NewBadRequest("unknown status " + string(newStatus))
	}
	if strings.TrimSpace(actor) == "" {
		return nil, apperrors.NewBadRequest("actor is required")
	}

	s.mu.Lock()
	record, err := s.users.GetUserByID(ctx, accountID)
	if err == nil {
		record, err = s.setStatusLocked(ctx, record, newStatus, actor)
	}
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	if newStatus == models.StatusApproved {
		s.syncLegacyStore(ctx, record)
	}
	return record, nil
}

// setStatusLocked performs the transition with s.mu held. Persistence and
// audit are one logical operation: a failure in either surfaces instead of
// leaving them silently inconsistent. External collaborators (mail, legacy
// sync) are never called here; they run after the lock is released.
func (s *Service) setStatusLocked(ctx context.Context, record *models.UserRecord, newStatus models.Status, actor string) (*models.UserRecord, error) {
	oldStatus := record.Status
	if !transitionAllowed(oldStatus, newStatus) {
		return nil, apperrors.ErrInvalidTransition
	}

	now := s.now().UTC()
	if err := s.users.UpdateStatus(ctx, record.ID, newStatus, now); err != nil {
		return nil, err
	}
	if err := s.commit(ctx); err != nil {
		return nil, err
	}

	action := models.AuditApprove
	eventType := hub.EventApproved
	if newStatus == models.StatusRejected {
		action = models.AuditReject
		eventType = hub.EventRejected
	}
	if err := s.audit(ctx, action, actor, record.ID, fmt.Sprintf("%s -> %s", oldStatus, newStatus)); err != nil {
		return nil, err
	}

	record.Status = newStatus
	record.LastStatusChangeAt = now

	s.reviews.Publish(hub.Event{
		Type:      eventType,
		AccountID: record.ID,
		Username:  record.Username,
		OldStatus: oldStatus,
		NewStatus: newStatus,
		Timestamp: now,
	})

	return record, nil
}

// Remove tombstones a claim, freeing its username for a fresh registration.
func (s *Service) Remove(ctx context.Context, accountID, actor string) error {
	if strings.TrimSpace(actor) == "" {
		return apperrors.NewBadRequest("actor is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	record, err := s.users.GetUserByID(ctx, accountID)
	if err != nil {
		return err
	}

	now := s.now().UTC()
	if err := s.users.DeleteUser(ctx, record.ID, now); err != nil {
		return err
	}
	if err := s.commit(ctx); err != nil {
		return err
	}
	if err := s.audit(ctx, models.AuditRemove, actor, record.ID, "username="+record.Username); err != nil {
		return err
	}

	s.reviews.Publish(hub.Event{
		Type:      hub.EventRemoved,
		AccountID: record.ID,
		Username:  record.Username,
		OldStatus: record.Status,
		Timestamp: now,
	})
	return nil
}

// ListUsers returns live claims, optionally narrowed to one status.
func (s *Service) ListUsers(ctx context.Context, status models.Status) ([]models.UserRecord, error) {
	all, err := s.users.GetAllUsers(ctx)
	if err != nil {
		return nil, err
	}
	if status == "" {
		return all, nil
	}
	if !status.Valid() {
		return nil, apperrors.NewBadRequest("unknown status " + string(status))
	}

	filtered := all[:0]
	for _, rec := range all {
		if rec.Status == status {
			filtered = append(filtered, rec)
		}
	}
	return filtered, nil
}

// IsApproved reports whether a live claim holds the username with approved
// status. Used by the login-gate collaborator.
func (s *Service) IsApproved(ctx context.Context, username string) (bool, error) {
	record, err := s.users.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return record.Status == models.StatusApproved, nil
}

// ListAudit exposes the audit trail to the review surface.
func (s *Service) ListAudit(ctx context.Context, filter store.AuditFilter) ([]models.AuditRecord, error) {
	return s.audits.List(ctx, filter)
}

// Flush persists any pending snapshot state, for shutdown.
func (s *Service) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commit(ctx)
}

func (s *Service) resolveClaim(ctx context.Context, identity string) (*models.UserRecord, error) {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return nil, apperrors.NewBadRequest("claim identity is required")
	}

	if record, err := s.users.GetUserByID(ctx, identity); err == nil {
		return record, nil
	} else if !errors.Is(err, apperrors.ErrNotFound) {
		return nil, err
	}

	// Fall back to email lookup among live claims.
	all, err := s.users.GetAllUsers(ctx)
	if err != nil {
		return nil, err
	}
	key := strings.ToLower(identity)
	for i := range all {
		if all[i].Email == key {
			return &all[i], nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (s *Service) audit(ctx context.Context, action models.AuditAction, actor, accountID, detail string) error {
	entry := &models.AuditRecord{
		Timestamp: s.now().UTC(),
		Actor:     actor,
		AccountID: accountID,
		Action:    action,
		Detail:    detail,
	}
	if err := s.audits.Append(ctx, entry); err != nil {
		return err
	}
	return s.audits.Save(ctx)
}

func (s *Service) commit(ctx context.Context) error {
	if err := s.users.Save(ctx); err != nil {
		return err
	}
	return s.audits.Save(ctx)
}

// deliverCode hands the code to the mail collaborator. Fire-and-forget:
// a delivery failure is logged here and never fails the registration. Runs
// outside s.mu so a slow SMTP dial cannot stall other mutations.
func (s *Service) deliverCode(ctx context.Context, delivery *CodeDelivery) {
	if s.mailer == nil {
		return
	}

	msg := pkgmail.Message{
		To:      []string{delivery.Email},
		Subject: "Your verification code",
		Body: fmt.Sprintf(
			"Your verification code is %s.\n\nIt expires at %s. If you did not request an account, ignore this message.\n",
			delivery.Code, delivery.ExpiresAt.Format(time.RFC1123)),
	}
	if err := s.mailer.Send(ctx, msg); err != nil && !errors.Is(err, pkgmail.ErrSMTPDisabled) {
		s.log.Warn("verification mail delivery failed",
			zap.String("email", delivery.Email), zap.Error(err))
	}
}

// syncLegacyStore provisions the account in the external AuthMe store with a
// fresh one-time credential. Approval stands regardless of the outcome; a
// failure is audited and swallowed. Called after s.mu is released: the
// bridge round-trip must not block other mutations.
func (s *Service) syncLegacyStore(ctx context.Context, record *models.UserRecord) {
	initial, err := crypto.GenerateToken(18)
	if err == nil {
		var hash string
		if hash, err = crypto.HashPassword(initial); err == nil {
			err = s.syncer.EnsureAccount(ctx, record.Username, hash)
		}
	}
	if err == nil {
		return
	}

	s.log.Warn("legacy store sync failed",
		zap.String("username", record.Username), zap.Error(err))
	if auditErr := s.audit(ctx, models.AuditSyncFailed, ActorSystem, record.ID, err.Error()); auditErr != nil {
		s.log.Error("failed to audit sync failure", zap.Error(auditErr))
	}
}

func transitionAllowed(from, to models.Status) bool {
	switch from {
	case models.StatusPending:
		return to == models.StatusApproved || to == models.StatusRejected
	case models.StatusApproved:
		return to == models.StatusRejected
	case models.StatusRejected:
		return to == models.StatusApproved
	}
	return false
}

func verifyResult(err error) string {
	switch {
	case errors.Is(err, apperrors.ErrCodeExpired):
		return "expired"
	case errors.Is(err, apperrors.ErrCodeMismatch):
		return "mismatch"
	case errors.Is(err, apperrors.ErrCodeAttemptsExhausted):
		return "exhausted"
	default:
		return "error"
	}
}
