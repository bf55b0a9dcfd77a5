package nodes

import "encoding/json"

func decodeFeedback(raw json.RawMessage, out interface{}) error {
	return json.Unmarshal(raw, out)
}
