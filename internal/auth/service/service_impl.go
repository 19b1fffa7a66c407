package service

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/quickcart/internal/audit/domain"
	"github.com/smallbiznis/quickcart/internal/auth/ability"
	"github.com/smallbiznis/quickcart/internal/auth/domain"
	"github.com/smallbiznis/quickcart/internal/auth/password"
	"github.com/smallbiznis/quickcart/internal/auth/token"
	"github.com/smallbiznis/quickcart/internal/clock"
	"github.com/smallbiznis/quickcart/internal/config"
	"github.com/smallbiznis/quickcart/internal/observability/metrics"
	rbacdomain "github.com/smallbiznis/quickcart/internal/rbac/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	tokenTypeBearer = "Bearer"

	defaultUserTokenTTL  = 30 * 24 * time.Hour
	defaultAdminTokenTTL = 12 * time.Hour
)

type Params struct {
	fx.In

	Log         *zap.Logger
	Config      config.Config
	Clock       clock.Clock
	GenID       *snowflake.Node
	Repo        domain.Repository
	Tokens      domain.TokenRepository
	Memberships domain.MembershipChecker
	Roles       rbacdomain.Repository
	Signer      *token.Signer
	AuditSvc    auditdomain.Service `optional:"true"`
	Metrics     *metrics.Metrics    `optional:"true"`
}

type Service struct {
	log         *zap.Logger
	clock       clock.Clock
	genID       *snowflake.Node
	repo        domain.Repository
	tokens      domain.TokenRepository
	memberships domain.MembershipChecker
	roles       rbacdomain.Repository
	signer      *token.Signer
	auditSvc    auditdomain.Service
	metrics     *metrics.Metrics

	userTTL  time.Duration
	adminTTL time.Duration
}

func New(p Params) domain.Service {
	userTTL := p.Config.AuthTokenTTL
	if userTTL <= 0 {
		userTTL = defaultUserTokenTTL
	}
	adminTTL := p.Config.AdminTokenTTL
	if adminTTL <= 0 {
		adminTTL = defaultAdminTokenTTL
	}
	return &Service{
		log:         p.Log.Named("auth.service"),
		clock:       p.Clock,
		genID:       p.GenID,
		repo:        p.Repo,
		tokens:      p.Tokens,
		memberships: p.Memberships,
		roles:       p.Roles,
		signer:      p.Signer,
		auditSvc:    p.AuditSvc,
		metrics:     p.Metrics,
		userTTL:     userTTL,
		adminTTL:    adminTTL,
	}
}

func (s *Service) CreateUser(ctx context.Context, req domain.CreateUserRequest) (*domain.User, error) {
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return nil, domain.ErrInvalidEmail
	}
	if !password.Acceptable(req.Password) {
		return nil, domain.ErrWeakPassword
	}

	if _, err := s.repo.FindUserByEmail(ctx, email); err == nil {
		return nil, domain.ErrUserExists
	} else if !errors.Is(err, domain.ErrUserNotFound) {
		return nil, err
	}

	hashed, err := password.Hash(req.Password)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	user := &domain.User{
		ID:           s.genID.Generate(),
		Email:        email,
		DisplayName:  displayNameOrDefault(req.DisplayName, email),
		PasswordHash: &hashed,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.CreateUser(ctx, user); err != nil {
		return nil, err
	}

	s.log.Info("user created", zap.String("user_id", user.ID.String()))
	return user, nil
}

func (s *Service) CreateAdmin(ctx context.Context, req domain.CreateUserRequest) (*domain.Admin, error) {
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return nil, domain.ErrInvalidEmail
	}
	if !password.Acceptable(req.Password) {
		return nil, domain.ErrWeakPassword
	}

	if _, err := s.repo.FindAdminByEmail(ctx, email); err == nil {
		return nil, domain.ErrAdminExists
	} else if !errors.Is(err, domain.ErrUserNotFound) {
		return nil, err
	}

	hashed, err := password.Hash(req.Password)
	if err != nil {
		return nil, err
	}

	admin := &domain.Admin{
		ID:           s.genID.Generate(),
		Email:        email,
		DisplayName:  displayNameOrDefault(req.DisplayName, email),
		PasswordHash: hashed,
		CreatedAt:    s.clock.Now(),
	}
	if err := s.repo.CreateAdmin(ctx, admin); err != nil {
		return nil, err
	}

	s.log.Info("admin created", zap.String("admin_id", admin.ID.String()))
	return admin, nil
}

func (s *Service) Login(ctx context.Context, req domain.LoginRequest) (*domain.LoginResult, error) {
	email, err := normalizeEmail(req.Email)
	if err != nil || strings.TrimSpace(req.Password) == "" {
		s.loginFailed(ctx, domain.GuardUser, "", req.IPAddress)
		return nil, domain.ErrInvalidCredentials
	}

	user, err := s.repo.FindUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			s.loginFailed(ctx, domain.GuardUser, "", req.IPAddress)
			return nil, domain.ErrInvalidCredentials
		}
		return nil, err
	}
	if user.PasswordHash == nil || !password.Verify(req.Password, *user.PasswordHash) {
		s.loginFailed(ctx, domain.GuardUser, user.ID.String(), req.IPAddress)
		return nil, domain.ErrInvalidCredentials
	}

	result, row, err := s.issue(ctx, domain.GuardUser, user.ID, ability.Empty(), s.userTTL)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordLoginAttempt(ctx, string(domain.GuardUser), "success")
	s.audit(ctx, auditdomain.Entry{
		ActorType:  string(auditdomain.ActorTypeUser),
		ActorID:    user.ID.String(),
		Action:     auditdomain.ActionTokenIssued,
		TargetType: "access_token",
		TargetID:   row.ID.String(),
		Metadata:   map[string]any{"guard": string(domain.GuardUser), "ip_address": req.IPAddress},
	})
	return result, nil
}

func (s *Service) AdminLogin(ctx context.Context, req domain.LoginRequest) (*domain.LoginResult, error) {
	email, err := normalizeEmail(req.Email)
	if err != nil || strings.TrimSpace(req.Password) == "" {
		s.loginFailed(ctx, domain.GuardAdmin, "", req.IPAddress)
		return nil, domain.ErrInvalidCredentials
	}

	admin, err := s.repo.FindAdminByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			s.loginFailed(ctx, domain.GuardAdmin, "", req.IPAddress)
			return nil, domain.ErrInvalidCredentials
		}
		return nil, err
	}
	if !password.Verify(req.Password, admin.PasswordHash) {
		s.loginFailed(ctx, domain.GuardAdmin, admin.ID.String(), req.IPAddress)
		return nil, domain.ErrInvalidCredentials
	}

	result, row, err := s.issue(ctx, domain.GuardAdmin, admin.ID, ability.Empty(), s.adminTTL)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordLoginAttempt(ctx, string(domain.GuardAdmin), "success")
	s.audit(ctx, auditdomain.Entry{
		ActorType:  string(auditdomain.ActorTypeAdmin),
		ActorID:    admin.ID.String(),
		Action:     auditdomain.ActionTokenIssued,
		TargetType: "access_token",
		TargetID:   row.ID.String(),
		Metadata:   map[string]any{"guard": string(domain.GuardAdmin), "ip_address": req.IPAddress},
	})
	return result, nil
}

// SelectRole rotates the caller's token into one that carries the chosen working role.
func (s *Service) SelectRole(ctx context.Context, principal *domain.Principal, organisationID, roleID snowflake.ID) (*domain.LoginResult, error) {
	if principal == nil {
		return nil, domain.ErrInvalidToken
	}
	if principal.IsAdmin() {
		return nil, domain.ErrAdminCannotSelect
	}
	if organisationID == 0 || roleID == 0 {
		return nil, domain.ErrRoleNotHeld
	}

	role, err := s.roles.FindRoleByID(ctx, roleID)
	if err != nil {
		if errors.Is(err, rbacdomain.ErrRoleNotFound) {
			return nil, domain.ErrRoleNotHeld
		}
		return nil, err
	}

	held, err := s.memberships.HoldsRoleInOrganisation(ctx, principal.UserID, organisationID, role.ID)
	if err != nil {
		return nil, err
	}
	if !held {
		return nil, domain.ErrRoleNotHeld
	}

	roleKey := string(role.RoleKey)
	abilities := ability.Encode(ability.Abilities{
		RoleKey:        &roleKey,
		OrganisationID: &organisationID,
		RoleID:         &role.ID,
	})
	result, row, err := s.issue(ctx, domain.GuardUser, principal.UserID, abilities, s.userTTL)
	if err != nil {
		return nil, err
	}

	if principal.TokenID != 0 {
		if err := s.tokens.DeleteToken(ctx, principal.TokenID); err != nil && !errors.Is(err, domain.ErrInvalidToken) {
			s.log.Warn("failed to revoke previous token", zap.String("token_id", principal.TokenID.String()), zap.Error(err))
		}
	}

	s.audit(ctx, auditdomain.Entry{
		OrgID:      &organisationID,
		ActorType:  string(auditdomain.ActorTypeUser),
		ActorID:    principal.UserID.String(),
		Action:     auditdomain.ActionRoleSelected,
		TargetType: "access_token",
		TargetID:   row.ID.String(),
		Metadata:   map[string]any{"role_key": roleKey, "role_id": role.ID.String()},
	})
	return result, nil
}

func (s *Service) Authenticate(ctx context.Context, rawToken string) (*domain.Principal, error) {
	claims, err := s.parse(rawToken)
	if err != nil {
		return nil, err
	}
	tokenID, err := claims.TokenID()
	if err != nil {
		return nil, domain.ErrInvalidToken
	}
	subject, err := claims.SubjectID()
	if err != nil {
		return nil, domain.ErrInvalidToken
	}

	row, err := s.tokens.FindToken(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	if string(row.Guard) != claims.Guard || row.TokenableID != subject {
		return nil, domain.ErrInvalidToken
	}

	now := s.clock.Now()
	if !now.Before(row.ExpiresAt) {
		return nil, domain.ErrTokenExpired
	}
	if err := s.tokens.TouchToken(ctx, row.ID, now); err != nil {
		return nil, err
	}

	return &domain.Principal{
		UserID:    row.TokenableID,
		Guard:     row.Guard,
		TokenID:   row.ID,
		Abilities: append([]string(nil), row.Abilities...),
	}, nil
}

func (s *Service) Logout(ctx context.Context, rawToken string) error {
	claims, err := s.parse(rawToken)
	if err != nil {
		return err
	}
	tokenID, err := claims.TokenID()
	if err != nil {
		return domain.ErrInvalidToken
	}
	if err := s.tokens.DeleteToken(ctx, tokenID); err != nil {
		return err
	}

	actorType := auditdomain.ActorTypeUser
	if claims.Guard == string(domain.GuardAdmin) {
		actorType = auditdomain.ActorTypeAdmin
	}
	s.audit(ctx, auditdomain.Entry{
		ActorType:  string(actorType),
		ActorID:    claims.Subject,
		Action:     auditdomain.ActionTokenRevoked,
		TargetType: "access_token",
		TargetID:   tokenID.String(),
	})
	return nil
}

func (s *Service) CurrentUser(ctx context.Context, principal *domain.Principal) (*domain.User, error) {
	if principal == nil || principal.IsAdmin() {
		return nil, domain.ErrUserNotFound
	}
	return s.repo.FindUserByID(ctx, principal.UserID)
}

func (s *Service) issue(ctx context.Context, guard domain.Guard, subject snowflake.ID, abilities []string, ttl time.Duration) (*domain.LoginResult, *domain.AccessToken, error) {
	now := s.clock.Now()
	row := &domain.AccessToken{
		ID:          s.genID.Generate(),
		TokenableID: subject,
		Guard:       guard,
		Abilities:   abilities,
		ExpiresAt:   now.Add(ttl),
		CreatedAt:   now,
	}
	if err := s.tokens.CreateToken(ctx, row); err != nil {
		return nil, nil, err
	}

	raw, err := s.signer.Sign(row.ID, subject, string(guard), now, row.ExpiresAt)
	if err != nil {
		return nil, nil, err
	}

	return &domain.LoginResult{
		RawToken:  raw,
		TokenType: tokenTypeBearer,
		ExpiresAt: row.ExpiresAt,
		Abilities: append([]string(nil), abilities...),
		Guard:     guard,
	}, row, nil
}

func (s *Service) parse(rawToken string) (*token.Claims, error) {
	raw := strings.TrimSpace(rawToken)
	if raw == "" {
		return nil, domain.ErrInvalidToken
	}
	claims, err := s.signer.Parse(raw)
	if errors.Is(err, token.ErrExpired) {
		return nil, domain.ErrTokenExpired
	}
	if err != nil {
		return nil, domain.ErrInvalidToken
	}
	return claims, nil
}

func (s *Service) loginFailed(ctx context.Context, guard domain.Guard, actorID, ip string) {
	s.metrics.RecordLoginAttempt(ctx, string(guard), "failure")
	actorType := auditdomain.ActorTypeUser
	if guard == domain.GuardAdmin {
		actorType = auditdomain.ActorTypeAdmin
	}
	s.audit(ctx, auditdomain.Entry{
		ActorType:  string(actorType),
		ActorID:    actorID,
		Action:     auditdomain.ActionLoginFailed,
		TargetType: string(guard),
		Metadata:   map[string]any{"ip_address": ip},
	})
}

func (s *Service) audit(ctx context.Context, entry auditdomain.Entry) {
	if s.auditSvc == nil {
		return
	}
	if err := s.auditSvc.AuditLog(ctx, entry); err != nil {
		s.log.Warn("failed to write audit log", zap.String("action", entry.Action), zap.Error(err))
	}
}

func normalizeEmail(raw string) (string, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(raw))
	if err != nil {
		return "", err
	}
	return strings.ToLower(strings.TrimSpace(addr.Address)), nil
}

func displayNameOrDefault(raw, email string) string {
	if name := strings.TrimSpace(raw); name != "" {
		return name
	}
	local, _, _ := strings.Cut(email, "@")
	if strings.TrimSpace(local) != "" {
		return strings.TrimSpace(local)
	}
	return email
}
