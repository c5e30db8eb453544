// Package chats provides the provider-agnostic conversation model used by
// agents and model adapters: roles, messages, and an ordered chat container.
//
// No provider or API code is included. Adapters translate [Message] values to
// their wire format and may set [Message.Model] on replies when the serving
// model is known.
package chats
