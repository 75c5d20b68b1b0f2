package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/course-cert-api/internal/models"
	appErrors "github.com/noah-isme/course-cert-api/pkg/errors"
)

// RoleService administers the global Admin and Evaluator roles.
type RoleService struct {
	store  Store
	logger *zap.Logger
	events EventPublisher
	now    func() time.Time
}

// NewRoleService constructs a RoleService.
func NewRoleService(store Store, logger *zap.Logger, events EventPublisher) *RoleService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if events == nil {
		events = noopPublisher{}
	}
	return &RoleService{store: store, logger: logger, events: events, now: time.Now}
}

// Grant adds account to role. Only admins may grant.
func (s *RoleService) Grant(ctx context.Context, caller string, role models.Role, account string) error {
	return s.change(ctx, caller, role, account, true)
}

// Revoke removes account from role. Only admins may revoke.
func (s *RoleService) Revoke(ctx context.Context, caller string, role models.Role, account string) error {
	return s.change(ctx, caller, role, account, false)
}

func (s *RoleService) change(ctx context.Context, caller string, role models.Role, account string, grant bool) error {
	if err := validateRole(role); err != nil {
		return err
	}
	callerAddr, err := normalizeAddress("caller", caller)
	if err != nil {
		return err
	}
	accountAddr, err := normalizeAddress("account", account)
	if err != nil {
		return err
	}

	var events []models.Event
	err = s.store.RunInTx(ctx, func(tx Tx) error {
		events = nil
		if err := requireRole(ctx, tx, models.RoleAdmin, callerAddr); err != nil {
			return err
		}
		var changed bool
		var err error
		if grant {
			changed, err = tx.Roles().Grant(ctx, role, accountAddr)
		} else {
			changed, err = tx.Roles().Revoke(ctx, role, accountAddr)
		}
		if err != nil {
			return internalError(err, "failed to update role")
		}
		if changed {
			eventType := models.EventRoleRevoked
			if grant {
				eventType = models.EventRoleGranted
			}
			events = append(events, newEvent(eventType, callerAddr, nil, map[string]interface{}{
				"role":    string(role),
				"account": accountAddr,
			}, s.now()))
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.events.Publish(ctx, events...)
	s.logger.Info("role membership updated",
		zap.String("role", string(role)),
		zap.String("account", accountAddr),
		zap.Bool("granted", grant),
		zap.String("actor", callerAddr),
	)
	return nil
}

// HasRole reports whether account holds role.
func (s *RoleService) HasRole(ctx context.Context, role models.Role, account string) (*models.RoleMembership, error) {
	if err := validateRole(role); err != nil {
		return nil, err
	}
	accountAddr, err := normalizeAddress("account", account)
	if err != nil {
		return nil, err
	}
	var member bool
	err = s.store.View(ctx, func(tx Tx) error {
		var err error
		member, err = tx.Roles().HasRole(ctx, role, accountAddr)
		if err != nil {
			return internalError(err, "failed to check role")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &models.RoleMembership{Role: role, Account: accountAddr, Member: member}, nil
}

// Bootstrap grants Admin to the deployer account without a caller check. An empty
// address is a no-op.
func (s *RoleService) Bootstrap(ctx context.Context, admin string) error {
	if admin == "" {
		return nil
	}
	adminAddr, err := normalizeAddress("admin", admin)
	if err != nil {
		return err
	}
	var granted bool
	err = s.store.RunInTx(ctx, func(tx Tx) error {
		var err error
		granted, err = tx.Roles().Grant(ctx, models.RoleAdmin, adminAddr)
		if err != nil {
			return internalError(err, "failed to bootstrap admin")
		}
		return nil
	})
	if err != nil {
		return err
	}
	if granted {
		s.logger.Info("bootstrap admin granted", zap.String("account", adminAddr))
	}
	return nil
}

func validateRole(role models.Role) error {
	if role != models.RoleAdmin && role != models.RoleEvaluator {
		return appErrors.Clone(appErrors.ErrValidation, "unknown role").WithDetails("role", string(role))
	}
	return nil
}
