package message

const (
	sagaIDHeader = "sagaId"
	stepHeader   = "sagaStep"
	phaseHeader  = "sagaPhase"
)

type Headers map[string]interface{}

func (h Headers) get(key string) string {
	v, exists := h[key]
	if !exists {
		return ""
	}

	s, ok := v.(string)
	if !ok {
		return ""
	}

	return s
}

// SagaID returns id of a saga the message belongs to
func (h Headers) SagaID() string {
	return h.get(sagaIDHeader)
}

func (h Headers) SetSagaID(sagaID string) {
	h[sagaIDHeader] = sagaID
}

// StepName returns the saga step a command was issued for or a reply answers
func (h Headers) StepName() string {
	return h.get(stepHeader)
}

func (h Headers) SetStepName(step string) {
	h[stepHeader] = step
}

// Phase is either "forward" or "compensation"
func (h Headers) Phase() string {
	return h.get(phaseHeader)
}

func (h Headers) SetPhase(phase string) {
	h[phaseHeader] = phase
}
