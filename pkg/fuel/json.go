package fuel

import "encoding/json"

func unmarshalPayload(payload []byte, out interface{}) error {
	return json.Unmarshal(payload, out)
}
