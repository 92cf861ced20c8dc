package redistore

import "encoding/json"

func marshal(value any) ([]byte, error) {
	if raw, ok := value.(json.RawMessage); ok {
		cloned := make([]byte, len(raw))
		copy(cloned, raw)
		return cloned, nil
	}
	return json.Marshal(value)
}
