package contracts

import (
	"github.com/go-foreman/orderflow/runtime/scheme"
)

const (
	CompensateSagaType  = "saga.compensate"
	SagaCompletedType   = "saga.completed"
	SagaCompensatedType = "saga.compensated"
	SagaFailedType      = "saga.failed"
)

// CompensateSagaCommand forces compensation of a running saga
type CompensateSagaCommand struct {
	SagaID string `json:"sagaId"`
	Reason string `json:"reason"`
}

// SagaFinishedEvent is published once a saga reaches a terminal status. Reason is empty for completed sagas.
type SagaFinishedEvent struct {
	SagaID         string `json:"sagaId"`
	SagaType       string `json:"sagaType"`
	CorrelationKey string `json:"correlationKey"`
	Status         string `json:"status"`
	Reason         string `json:"reason,omitempty"`
}

func RegisterSagaContracts(registry scheme.KnownTypesRegistry) {
	registry.AddKnownType(CompensateSagaType, &CompensateSagaCommand{})
	registry.AddKnownType(SagaCompletedType, &SagaFinishedEvent{})
	registry.AddKnownType(SagaCompensatedType, &SagaFinishedEvent{})
	registry.AddKnownType(SagaFailedType, &SagaFinishedEvent{})
}
