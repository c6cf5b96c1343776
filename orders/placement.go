package orders

import (
	"time"

	"github.com/go-foreman/orderflow/saga"
	"github.com/go-foreman/orderflow/saga/handlers"
)

const (
	PlacementSagaType = "ORDER_PLACEMENT"

	StepReserveInventory = "ReserveInventory"
	StepChargePayment    = "ChargePayment"
	StepConfirmOrder     = "ConfirmOrder"
)

// PlacementDefinition reserves inventory, charges payment and confirms the order.
// Confirmation is the last step and has nothing to compensate.
func PlacementDefinition(timeout time.Duration) saga.Definition {
	return saga.Definition{
		Type:    PlacementSagaType,
		Timeout: timeout,
		Steps: []saga.StepDefinition{
			{Name: StepReserveInventory, Command: ReserveInventoryCmdType, Compensation: ReleaseInventoryCmdType},
			{Name: StepChargePayment, Command: ChargePaymentCmdType, Compensation: RefundPaymentCmdType},
			{Name: StepConfirmOrder, Command: ConfirmOrderCmdType},
		},
	}
}

// Replies maps replies of participants to steps of the placement saga
func Replies() handlers.ReplyMapping {
	return handlers.ReplyMapping{
		InventoryReservedType:        {Step: StepReserveInventory, Phase: saga.PhaseForward, Success: true},
		InventoryReservationFailType: {Step: StepReserveInventory, Phase: saga.PhaseForward},
		InventoryReleasedType:        {Step: StepReserveInventory, Phase: saga.PhaseCompensation, Success: true},
		InventoryReleaseFailedType:   {Step: StepReserveInventory, Phase: saga.PhaseCompensation},
		PaymentSucceededType:         {Step: StepChargePayment, Phase: saga.PhaseForward, Success: true},
		PaymentFailedType:            {Step: StepChargePayment, Phase: saga.PhaseForward},
		PaymentRefundedType:          {Step: StepChargePayment, Phase: saga.PhaseCompensation, Success: true},
		PaymentRefundFailedType:      {Step: StepChargePayment, Phase: saga.PhaseCompensation},
		OrderConfirmedType:           {Step: StepConfirmOrder, Phase: saga.PhaseForward, Success: true},
		OrderConfirmationFailedType:  {Step: StepConfirmOrder, Phase: saga.PhaseForward},
	}
}
