package rpc

import "encoding/json"

// Codec serializes RPC messages as JSON. The location and notification
// contracts are hand-written structs rather than generated protobuf types, so
// both ends must agree on this codec instead of grpc's default proto one.
type Codec struct{}

// Marshal encodes a message.
func (Codec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

// Unmarshal decodes a message in place.
func (Codec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

// Name identifies the codec for content-type negotiation.
func (Codec) Name() string { return "json" }
