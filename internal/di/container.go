package di

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/mealhub/api/internal/domain"
	"github.com/mealhub/api/internal/payments"
	"github.com/mealhub/api/internal/platform/config"
	pfirestore "github.com/mealhub/api/internal/platform/firestore"
	"github.com/mealhub/api/internal/repositories"
	fsrepo "github.com/mealhub/api/internal/repositories/firestore"
	"github.com/mealhub/api/internal/services"
)

// Repositories bundles the persistence-layer contracts the services rely on.
type Repositories struct {
	Orders    repositories.OrderRepository
	Carts     repositories.CartRepository
	Shops     repositories.ShopRepository
	Products  repositories.ProductRepository
	Vouchers  repositories.VoucherRepository
	Users     repositories.UserRepository
	Addresses repositories.AddressRepository
	Counters  repositories.CounterRepository
}

// Services bundles the service-layer contracts that handlers depend on.
type Services struct {
	Orders      services.OrderService
	Maintenance services.MaintenanceService
}

// Deps carries the externally constructed collaborators the container wires
// into services. Payments and Events are optional; nil falls back to the
// service defaults (no-op processor, no event publishing).
type Deps struct {
	Provider *pfirestore.Provider
	Payments payments.Processor
	Events   services.OrderEventPublisher
	Logger   *zap.Logger
}

// Container wires repositories and services for runtime use.
type Container struct {
	Config       config.Config
	Provider     *pfirestore.Provider
	Repositories Repositories
	Services     Services
}

// NewContainer constructs the runtime dependency graph. Production wiring
// supplies a real Firestore provider; tests can bypass the container and
// assemble services from stubs directly.
func NewContainer(_ context.Context, cfg config.Config, deps Deps) (*Container, error) {
	if deps.Provider == nil {
		return nil, errors.New("di: firestore provider is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	repos, err := buildRepositories(deps.Provider, cfg, logger)
	if err != nil {
		return nil, err
	}

	svc, err := buildServices(repos, cfg, deps, logger)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Provider:     deps.Provider,
		Repositories: repos,
		Services:     svc,
	}, nil
}

// Close releases the underlying Firestore client.
func (c *Container) Close() error {
	if c == nil || c.Provider == nil {
		return nil
	}
	return c.Provider.Close()
}

func buildRepositories(provider *pfirestore.Provider, cfg config.Config, logger *zap.Logger) (Repositories, error) {
	orders, err := fsrepo.NewOrderRepository(provider, cfg.QueryFallback, logger)
	if err != nil {
		return Repositories{}, fmt.Errorf("build order repository: %w", err)
	}
	carts, err := fsrepo.NewCartRepository(provider)
	if err != nil {
		return Repositories{}, fmt.Errorf("build cart repository: %w", err)
	}
	shops, err := fsrepo.NewShopRepository(provider)
	if err != nil {
		return Repositories{}, fmt.Errorf("build shop repository: %w", err)
	}
	products, err := fsrepo.NewProductRepository(provider)
	if err != nil {
		return Repositories{}, fmt.Errorf("build product repository: %w", err)
	}
	vouchers, err := fsrepo.NewVoucherRepository(provider)
	if err != nil {
		return Repositories{}, fmt.Errorf("build voucher repository: %w", err)
	}
	users, err := fsrepo.NewUserRepository(provider)
	if err != nil {
		return Repositories{}, fmt.Errorf("build user repository: %w", err)
	}
	addresses, err := fsrepo.NewAddressRepository(provider)
	if err != nil {
		return Repositories{}, fmt.Errorf("build address repository: %w", err)
	}
	counters, err := fsrepo.NewCounterRepository(provider)
	if err != nil {
		return Repositories{}, fmt.Errorf("build counter repository: %w", err)
	}

	return Repositories{
		Orders:    orders,
		Carts:     carts,
		Shops:     shops,
		Products:  products,
		Vouchers:  vouchers,
		Users:     users,
		Addresses: addresses,
		Counters:  counters,
	}, nil
}

func buildServices(repos Repositories, cfg config.Config, deps Deps, logger *zap.Logger) (Services, error) {
	orderSvc, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:        repos.Orders,
		Carts:         repos.Carts,
		Shops:         repos.Shops,
		Products:      repos.Products,
		Vouchers:      repos.Vouchers,
		Users:         repos.Users,
		Addresses:     repos.Addresses,
		Counters:      repos.Counters,
		Transitions:   domain.NewStateMachine(statusList(cfg.Orders.CustomerCancelStatuses)),
		Payments:      deps.Payments,
		Events:        deps.Events,
		ReadyStatuses: availabilityList(cfg.Orders.ShipperReadyStatuses),
		Logger:        logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}

	maintenanceSvc, err := services.NewMaintenanceService(services.MaintenanceServiceDeps{
		Orders:         repos.Orders,
		ActiveStatuses: statusList(cfg.Backfill.ActiveStatuses),
		BatchSize:      cfg.Backfill.BatchSize,
		Logger:         logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build maintenance service: %w", err)
	}

	return Services{
		Orders:      orderSvc,
		Maintenance: maintenanceSvc,
	}, nil
}

func availabilityList(values []string) []domain.ShipperAvailability {
	availabilities := make([]domain.ShipperAvailability, 0, len(values))
	for _, value := range values {
		trimmed := strings.ToLower(strings.TrimSpace(value))
		if trimmed == "" {
			continue
		}
		availabilities = append(availabilities, domain.ShipperAvailability(trimmed))
	}
	return availabilities
}

func statusList(values []string) []domain.OrderStatus {
	statuses := make([]domain.OrderStatus, 0, len(values))
	for _, value := range values {
		trimmed := strings.ToLower(strings.TrimSpace(value))
		if trimmed == "" {
			continue
		}
		statuses = append(statuses, domain.OrderStatus(trimmed))
	}
	return statuses
}
