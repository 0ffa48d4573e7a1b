// Package stt speaks the real-time recognition protocol: token exchange,
// the websocket transport, and the JSON codec for control and transcript
// messages.
package stt
