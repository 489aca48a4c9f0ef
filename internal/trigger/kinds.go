package trigger

import "fmt"

// Kind names one asynchronous pipeline step the backend can perform against
// existing session content. The five kinds form a logical pipeline but are
// independently invocable.
type Kind string

const (
	KindTestGeneration          Kind = "testGeneration"
	KindSecurityAnalysis        Kind = "securityAnalysis"
	KindTestSimulation          Kind = "testSimulation"
	KindTestFixValidation       Kind = "testFixValidation"
	KindSecurityFixVerification Kind = "securityFixVerification"
)

// Kinds returns all trigger kinds in pipeline order.
func Kinds() []Kind {
	return []Kind{
		KindTestGeneration,
		KindSecurityAnalysis,
		KindTestSimulation,
		KindTestFixValidation,
		KindSecurityFixVerification,
	}
}

// ParseKind parses a trigger kind name.
func ParseKind(raw string) (Kind, error) {
	for _, k := range Kinds() {
		if string(k) == raw {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown trigger kind: %q", raw)
}

// EventName is the outbound event name for this kind. Inbound results arrive
// as `result:<kind>` or `error:trigger*` frames, routed by shape in the
// transport.
func (k Kind) EventName() string {
	return "trigger:" + string(k)
}
