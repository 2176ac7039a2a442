// internal/services/container.go
package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/javajoker/imi-licensing/internal/config"
	"github.com/javajoker/imi-licensing/internal/event"
	"github.com/javajoker/imi-licensing/internal/repository"
)

// Container holds the wired services of one engine instance.
type Container struct {
	Blockchain    *BlockchainService
	Authorization *AuthorizationService
	IP            *IPService
	License       *LicenseService
	Product       *ProductService
	Order         *OrderService
	Notification  *NotificationService
}

// New wires every service over store. reg may be nil.
func New(store repository.Store, bus *event.EventBus, reg prometheus.Registerer, cfg config.MarketplaceConfig, logger *logrus.Entry) *Container {
	var metrics *Metrics
	if reg != nil {
		metrics = NewMetrics(reg)
	}

	blockchain := NewBlockchainService(logger)
	authorization := NewAuthorizationService(store, blockchain, bus, metrics, cfg, logger)
	notification := NewNotificationService(logger)
	notification.Subscribe(bus)

	return &Container{
		Blockchain:    blockchain,
		Authorization: authorization,
		IP:            NewIPService(store, blockchain, logger),
		License:       NewLicenseService(store, authorization, bus, metrics, cfg, logger),
		Product:       NewProductService(store, authorization, bus, logger),
		Order:         NewOrderService(store, authorization, bus, metrics, cfg, logger),
		Notification:  notification,
	}
}
