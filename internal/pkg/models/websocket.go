package models

import "encoding/json"

// WSMessage is the wire envelope for every push-channel message
type WSMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// WSErrorMessage is an error pushed to a client over the channel
type WSErrorMessage struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
