// internal/services/notification_service.go
package services

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/javajoker/imi-licensing/internal/event"
	"github.com/javajoker/imi-licensing/internal/models"
)

const maxNotificationsPerUser = 50

type Notification struct {
	UserID    uuid.UUID              `json:"user_id"`
	Type      string                 `json:"type"`
	Title     string                 `json:"title"`
	Message   string                 `json:"message"`
	Data      map[string]interface{} `json:"data,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

// NotificationService turns engine events into per-user notifications. They
// are logged and the most recent ones are kept in memory for each recipient.
type NotificationService struct {
	logger *logrus.Entry

	mu     sync.RWMutex
	byUser map[uuid.UUID][]Notification
}

func NewNotificationService(logger *logrus.Entry) *NotificationService {
	return &NotificationService{
		logger: componentLogger(logger, "notification"),
		byUser: make(map[uuid.UUID][]Notification),
	}
}

// Subscribe registers the service for every event the engine emits.
func (s *NotificationService) Subscribe(bus *event.EventBus) {
	for _, eventType := range event.All {
		bus.SubscribeFunc(eventType, s.Handle)
	}
}

func (s *NotificationService) Handle(evt event.Event) {
	switch data := evt.Data.(type) {
	case event.LicenseEvent:
		s.licenseNotifications(evt, data)
	case event.AuthorizationEvent:
		s.authorizationNotifications(evt, data)
	case event.TransactionEvent:
		s.transactionNotifications(evt, data)
	default:
		s.logger.WithField("type", evt.Type).Debug("event without notification")
	}
}

func (s *NotificationService) licenseNotifications(evt event.Event, data event.LicenseEvent) {
	payload := map[string]interface{}{
		"application_id": data.ApplicationID.String(),
		"ip_asset_id":    data.IPAssetID.String(),
	}

	switch evt.Type {
	case event.LicenseSubmitted:
		s.send(data.OwnerID, evt, "New License Application",
			"A new license application was submitted for your IP asset", payload)
	case event.LicenseApproved:
		message := "Your license application has been approved"
		if data.ActorID == models.SystemActorID {
			message = "Your license application was approved automatically"
		}
		s.send(data.ApplicantID, evt, "License Approved", message, payload)
	case event.LicenseRejected:
		s.send(data.ApplicantID, evt, "License Application Rejected",
			fmt.Sprintf("Your license application was rejected: %s", data.Reason), payload)
	case event.LicenseRevoked:
		s.send(data.ApplicantID, evt, "License Revoked",
			fmt.Sprintf("Your license has been revoked: %s", data.Reason), payload)
	case event.LicenseExpired:
		s.send(data.ApplicantID, evt, "License Expired", "Your license has expired", payload)
		s.send(data.OwnerID, evt, "License Expired", "A license on your IP asset has expired", payload)
	}
}

func (s *NotificationService) authorizationNotifications(evt event.Event, data event.AuthorizationEvent) {
	fields := logrus.Fields{
		"product_id":        data.ProductID,
		"verification_code": data.VerificationCode,
	}
	if evt.Type == event.AuthorizationDeactivated {
		s.logger.WithFields(fields).WithField("reason", data.Reason).Warn("product authorization deactivated")
		return
	}
	s.logger.WithFields(fields).Info("product authorization issued")
}

func (s *NotificationService) transactionNotifications(evt event.Event, data event.TransactionEvent) {
	payload := map[string]interface{}{
		"transaction_id": data.TransactionID.String(),
		"amount":         data.Amount.StringFixed(2),
	}

	s.send(data.BuyerID, evt, "Payment Completed",
		fmt.Sprintf("Your payment of %s has been processed", data.Amount.StringFixed(2)), payload)
	if share, ok := data.Shares[string(models.PartySeller)]; ok {
		s.send(data.SellerID, evt, "Sale Completed",
			fmt.Sprintf("You earned %s from a sale", share.StringFixed(2)), payload)
	}
	if share, ok := data.Shares[string(models.PartyIPCreator)]; ok && data.IPCreatorID != uuid.Nil {
		s.send(data.IPCreatorID, evt, "Revenue Share",
			fmt.Sprintf("You earned %s in license revenue", share.StringFixed(2)), payload)
	}
}

func (s *NotificationService) send(userID uuid.UUID, evt event.Event, title, message string, data map[string]interface{}) {
	if userID == uuid.Nil || userID == models.SystemActorID {
		return
	}

	n := Notification{
		UserID:    userID,
		Type:      string(evt.Type),
		Title:     title,
		Message:   message,
		Data:      data,
		CreatedAt: evt.Timestamp,
	}

	s.mu.Lock()
	list := append(s.byUser[userID], n)
	if len(list) > maxNotificationsPerUser {
		list = list[len(list)-maxNotificationsPerUser:]
	}
	s.byUser[userID] = list
	s.mu.Unlock()

	s.logger.WithFields(logrus.Fields{
		"user_id": userID,
		"type":    evt.Type,
	}).Info(title)
}

// Recent returns the user's notifications, newest first.
func (s *NotificationService) Recent(userID uuid.UUID) []Notification {
	s.mu.RLock()
	out := slices.Clone(s.byUser[userID])
	s.mu.RUnlock()

	slices.Reverse(out)
	if out == nil {
		out = []Notification{}
	}
	return out
}
