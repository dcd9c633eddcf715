// Package notifications defines the notification types and the service
// interface implemented by the concrete senders.
package notifications

import "context"

// Notification is a message to be delivered to a customer.
type Notification struct {
	ToName    string
	ToAddress string
	Subject   string
	Body      string
	PlainBody string
}

// NotificationService is implemented by every notification sender.
type NotificationService interface {
	New(conf any) error
	SendNotification(context.Context, *Notification) error
}
