package orders

import (
	"github.com/go-foreman/orderflow/runtime/scheme"
)

const (
	OrderCreatedType             = "order.created"
	OrderStatusChangedType       = "order.status_changed"
	OrderConfirmedType           = "order.confirmed"
	OrderConfirmationFailedType  = "order.confirmation_failed"
	InventoryReservedType        = "inventory.reserved"
	InventoryReservationFailType = "inventory.reservation_failed"
	InventoryReleasedType        = "inventory.released"
	InventoryReleaseFailedType   = "inventory.release_failed"
	PaymentSucceededType         = "payment.succeeded"
	PaymentFailedType            = "payment.failed"
	PaymentRefundedType          = "payment.refunded"
	PaymentRefundFailedType      = "payment.refund_failed"

	ReserveInventoryCmdType = "inventory.reserve"
	ReleaseInventoryCmdType = "inventory.release"
	ChargePaymentCmdType    = "payment.charge"
	RefundPaymentCmdType    = "payment.refund"
	ConfirmOrderCmdType     = "order.confirm"
)

const (
	OrdersTopic          = "orders"
	InventoryTopic       = "inventory"
	InventoryEventsTopic = "inventory.events"
	PaymentsTopic        = "payments"
	PaymentsEventsTopic  = "payments.events"
)

// OrderCreatedEvent starts the placement saga, its payload is carried by every command of the saga
type OrderCreatedEvent struct {
	OrderID    string `json:"orderId"`
	CustomerID string `json:"customerId"`
	Items      []Item `json:"items"`
	Total      int64  `json:"total"`
}

type OrderStatusChangedEvent struct {
	OrderID string `json:"orderId"`
	From    Status `json:"from"`
	To      Status `json:"to"`
	Reason  string `json:"reason,omitempty"`
}

// ParticipantSucceededEvent is a successful reply of a participant. Reference is what the participant created, e.g. reservation or payment id.
type ParticipantSucceededEvent struct {
	OrderID   string `json:"orderId"`
	Reference string `json:"reference,omitempty"`
}

// ParticipantFailedEvent is a business failure reply of a participant
type ParticipantFailedEvent struct {
	OrderID string `json:"orderId"`
	Reason  string `json:"reason"`
}

func (e *ParticipantFailedEvent) FailureReason() string {
	return e.Reason
}

// CommandTopics maps commands of the placement saga to topics of participants
var CommandTopics = map[string]string{
	ReserveInventoryCmdType: InventoryTopic,
	ReleaseInventoryCmdType: InventoryTopic,
	ChargePaymentCmdType:    PaymentsTopic,
	RefundPaymentCmdType:    PaymentsTopic,
	ConfirmOrderCmdType:     OrdersTopic,
}

// EventTopics maps events produced by the orders service to topics
var EventTopics = map[string]string{
	OrderCreatedType:            OrdersTopic,
	OrderStatusChangedType:      OrdersTopic,
	OrderConfirmedType:          OrdersTopic,
	OrderConfirmationFailedType: OrdersTopic,
}

// ReplyTopics maps replies of participants to topics they are published to
var ReplyTopics = map[string]string{
	InventoryReservedType:        InventoryEventsTopic,
	InventoryReservationFailType: InventoryEventsTopic,
	InventoryReleasedType:        InventoryEventsTopic,
	InventoryReleaseFailedType:   InventoryEventsTopic,
	PaymentSucceededType:         PaymentsEventsTopic,
	PaymentFailedType:            PaymentsEventsTopic,
	PaymentRefundedType:          PaymentsEventsTopic,
	PaymentRefundFailedType:      PaymentsEventsTopic,
}

// ConsumedTopics are topics the orders service listens to
func ConsumedTopics() []string {
	return []string{OrdersTopic, InventoryEventsTopic, PaymentsEventsTopic}
}

func RegisterTypes(registry scheme.KnownTypesRegistry) {
	registry.AddKnownType(OrderCreatedType, &OrderCreatedEvent{})
	registry.AddKnownType(OrderStatusChangedType, &OrderStatusChangedEvent{})

	for _, cmdType := range []string{ReserveInventoryCmdType, ReleaseInventoryCmdType, ChargePaymentCmdType, RefundPaymentCmdType, ConfirmOrderCmdType} {
		registry.AddKnownType(cmdType, &OrderCreatedEvent{})
	}

	for _, eventType := range []string{OrderConfirmedType, InventoryReservedType, InventoryReleasedType, PaymentSucceededType, PaymentRefundedType} {
		registry.AddKnownType(eventType, &ParticipantSucceededEvent{})
	}

	for _, eventType := range []string{OrderConfirmationFailedType, InventoryReservationFailType, InventoryReleaseFailedType, PaymentFailedType, PaymentRefundFailedType} {
		registry.AddKnownType(eventType, &ParticipantFailedEvent{})
	}
}
